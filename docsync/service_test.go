package docsync

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

func TestCheckUploadLimits(t *testing.T) {
	cases := []struct {
		name         string
		ext          string
		size         int64
		expectedCode string
	}{
		{"pdf within limit", ".pdf", 1 << 20, ""},
		{"pdf at limit", ".pdf", 20 << 20, ""},
		{"pdf over limit", ".pdf", 20<<20 + 1, "FILE_TOO_LARGE"},
		{"docx within limit", ".docx", 5 << 20, ""},
		{"doc over limit", ".doc", 10<<20 + 1, "FILE_TOO_LARGE"},
		{"executable rejected", ".exe", 100, "UNSUPPORTED_FILE_TYPE"},
		{"no extension rejected", "", 100, "UNSUPPORTED_FILE_TYPE"},
	}
	for _, tc := range cases {
		err := checkUploadLimits(tc.ext, tc.size)
		if tc.expectedCode == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		var se *utils.StatusError
		if !errors.As(err, &se) || se.Code != tc.expectedCode {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.expectedCode, err)
		}
	}
}

func TestSyncColumns(t *testing.T) {
	cols := syncColumns(Transition{Next: models.SyncStatusPendingSync, SetLock: true})
	if cols["sync_status"] != models.SyncStatusPendingSync {
		t.Fatalf("unexpected sync_status: %v", cols["sync_status"])
	}
	if cols["is_locked"] != true {
		t.Fatalf("expected is_locked true, got %v", cols["is_locked"])
	}
	if _, ok := cols["doc_index_id"]; ok {
		t.Fatal("doc_index_id must stay untouched without ClearIndex")
	}

	cols = syncColumns(Transition{Next: models.SyncStatusNotSync, ClearLock: true, ClearIndex: true})
	if cols["is_locked"] != false {
		t.Fatalf("expected is_locked false, got %v", cols["is_locked"])
	}
	if v, ok := cols["doc_index_id"]; !ok || v != nil {
		t.Fatalf("expected doc_index_id cleared, got %v", v)
	}
}

func TestCleanupReplacedObject(t *testing.T) {
	var deleted []string
	s := &Service{removeObject: func(ctx context.Context, key string) error {
		deleted = append(deleted, key)
		return nil
	}}

	// A replaced key is always removed from storage, including the
	// remove-and-resync path where the index cleanup runs separately.
	s.cleanupReplacedObject(context.Background(), true, "biz-1/documents/old.pdf")
	s.cleanupReplacedObject(context.Background(), false, "biz-1/documents/kept.pdf")
	s.cleanupReplacedObject(context.Background(), true, "")

	if len(deleted) != 1 {
		t.Fatalf("expected exactly one deletion, got %v", deleted)
	}
	if deleted[0] != "biz-1/documents/old.pdf" {
		t.Fatalf("expected the replaced key to be deleted, got %q", deleted[0])
	}
}
