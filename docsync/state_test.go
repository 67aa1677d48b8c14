package docsync

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

func TestDecide_Triggers(t *testing.T) {
	cases := []struct {
		name    string
		event   Event
		snap    Snapshot
		next    models.SyncStatus
		job     string
		setLock bool
	}{
		{"sync from NOT_SYNC", EventTriggerSync, Snapshot{Status: models.SyncStatusNotSync, Valid: true}, models.SyncStatusPendingSync, models.JobSyncDocument, true},
		{"sync from FAILED_SYNC", EventTriggerSync, Snapshot{Status: models.SyncStatusFailedSync, Valid: true}, models.SyncStatusPendingSync, models.JobSyncDocument, true},
		{"sync from SYNC is a resync", EventTriggerSync, Snapshot{Status: models.SyncStatusSync, Valid: true}, models.SyncStatusPendingSync, models.JobResyncDocument, true},
		{"sync from FAILED_RESYNC is a resync", EventTriggerSync, Snapshot{Status: models.SyncStatusFailedResync, Valid: true}, models.SyncStatusPendingSync, models.JobResyncDocument, true},
		{"unsync from SYNC", EventTriggerUnsync, Snapshot{Status: models.SyncStatusSync, Valid: true}, models.SyncStatusNotSync, models.JobUnsyncDocument, false},
		{"unsync from FAILED_RESYNC", EventTriggerUnsync, Snapshot{Status: models.SyncStatusFailedResync, Valid: true}, models.SyncStatusNotSync, models.JobUnsyncDocument, false},
		{"content replaced on synced doc", EventContentReplaced, Snapshot{Status: models.SyncStatusSync, Valid: true}, models.SyncStatusPendingSync, models.JobRemoveResyncDocument, true},
		{"metadata change on synced doc", EventMetadataChanged, Snapshot{Status: models.SyncStatusSync, Valid: true}, models.SyncStatusPendingSync, models.JobResyncDocument, true},
		{"validity revoked on synced doc", EventValidityRevoked, Snapshot{Status: models.SyncStatusSync}, models.SyncStatusNotSync, models.JobUnsyncDocument, false},
	}
	for _, tc := range cases {
		tr, err := Decide(tc.event, tc.snap)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tr.NoChange {
			t.Fatalf("%s: expected a transition, got no-op", tc.name)
		}
		if tr.Next != tc.next {
			t.Fatalf("%s: expected next %s, got %s", tc.name, tc.next, tr.Next)
		}
		if tr.EnqueueJob != tc.job {
			t.Fatalf("%s: expected job %q, got %q", tc.name, tc.job, tr.EnqueueJob)
		}
		if tr.SetLock != tc.setLock {
			t.Fatalf("%s: expected SetLock=%v, got %v", tc.name, tc.setLock, tr.SetLock)
		}
	}
}

func TestDecide_LockedDocumentConflicts(t *testing.T) {
	// A PENDING_SYNC document is always locked; the conflict must come back
	// for it too, not just for a locked SYNC document.
	statuses := []models.SyncStatus{models.SyncStatusSync, models.SyncStatusPendingSync}
	events := []Event{EventTriggerSync, EventTriggerUnsync, EventMetadataChanged, EventContentReplaced, EventValidityRevoked, EventDelete}
	for _, status := range statuses {
		for _, ev := range events {
			_, err := Decide(ev, Snapshot{Status: status, Locked: true, Valid: true})
			if err == nil {
				t.Fatalf("%s on locked %s document: expected conflict, got nil", ev, status)
			}
			var se *utils.StatusError
			if !errors.As(err, &se) || se.Status != 409 {
				t.Fatalf("%s on locked %s document: expected 409, got %v", ev, status, err)
			}
			if se.Code != "IN_PROGRESS_DOCUMENT" {
				t.Fatalf("%s on locked %s document: expected IN_PROGRESS_DOCUMENT, got %s", ev, status, se.Code)
			}
		}
	}
}

func TestDecide_InvalidDocumentForbidden(t *testing.T) {
	_, err := Decide(EventTriggerSync, Snapshot{Status: models.SyncStatusNotSync, Valid: false})
	if err == nil {
		t.Fatal("expected forbidden error for invalid document")
	}
	var se *utils.StatusError
	if !errors.As(err, &se) || se.Status != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
	if se.Code != "INVALID_DOCUMENT" {
		t.Fatalf("expected INVALID_DOCUMENT, got %s", se.Code)
	}
}

func TestDecide_WorkerOutcomes(t *testing.T) {
	tr, err := Decide(EventSyncSucceeded, Snapshot{Status: models.SyncStatusPendingSync, Locked: true, Valid: true})
	if err != nil {
		t.Fatalf("sync succeeded: %v", err)
	}
	if tr.Next != models.SyncStatusSync || !tr.StoreIndex || !tr.ClearLock {
		t.Fatalf("sync succeeded: unexpected transition %+v", tr)
	}

	tr, err = Decide(EventSyncFailed, Snapshot{Status: models.SyncStatusPendingSync, Locked: true, Valid: true})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if tr.Next != models.SyncStatusFailedSync || !tr.ClearIndex || !tr.ClearLock {
		t.Fatalf("sync failed: unexpected transition %+v", tr)
	}

	tr, err = Decide(EventResyncFailed, Snapshot{Status: models.SyncStatusPendingSync, Locked: true, Valid: true})
	if err != nil {
		t.Fatalf("resync failed: %v", err)
	}
	if tr.Next != models.SyncStatusFailedResync || tr.ClearIndex {
		t.Fatalf("resync failed must keep the index id, got %+v", tr)
	}
}

func TestDecide_LateCallbacksAreNoOps(t *testing.T) {
	// Worker callbacks and watchdogs arriving after the document already
	// moved on must not overwrite the newer state.
	events := []Event{EventSyncSucceeded, EventSyncFailed, EventResyncSucceeded, EventResyncFailed, EventWatchdogExpired, EventResyncWatchdogExpired}
	for _, ev := range events {
		tr, err := Decide(ev, Snapshot{Status: models.SyncStatusSync, Valid: true})
		if err != nil {
			t.Fatalf("%s on SYNC document: unexpected error %v", ev, err)
		}
		if !tr.NoChange {
			t.Fatalf("%s on SYNC document: expected no-op, got %+v", ev, tr)
		}
	}
}

func TestDecide_Watchdog(t *testing.T) {
	tr, err := Decide(EventWatchdogExpired, Snapshot{Status: models.SyncStatusPendingSync, Locked: true, Valid: true})
	if err != nil {
		t.Fatalf("watchdog: %v", err)
	}
	if tr.Next != models.SyncStatusFailedSync || !tr.ClearLock {
		t.Fatalf("watchdog: unexpected transition %+v", tr)
	}

	tr, err = Decide(EventResyncWatchdogExpired, Snapshot{Status: models.SyncStatusPendingSync, Locked: true, Valid: true})
	if err != nil {
		t.Fatalf("resync watchdog: %v", err)
	}
	if tr.Next != models.SyncStatusFailedResync || tr.ClearIndex {
		t.Fatalf("resync watchdog must keep the index id, got %+v", tr)
	}
}

func TestDecide_UpdateEventsOnUnsyncedDocsAreNoOps(t *testing.T) {
	for _, status := range []models.SyncStatus{models.SyncStatusNotSync, models.SyncStatusFailedSync} {
		for _, ev := range []Event{EventMetadataChanged, EventContentReplaced, EventValidityRevoked} {
			tr, err := Decide(ev, Snapshot{Status: status, Valid: true})
			if err != nil {
				t.Fatalf("%s on %s: unexpected error %v", ev, status, err)
			}
			if !tr.NoChange {
				t.Fatalf("%s on %s: expected plain update, got %+v", ev, status, tr)
			}
		}
	}
}

func TestDecide_DeleteRequestsUnsyncOnlyForIndexedDocs(t *testing.T) {
	tr, err := Decide(EventDelete, Snapshot{Status: models.SyncStatusSync, Valid: true})
	if err != nil {
		t.Fatalf("delete synced: %v", err)
	}
	if !tr.CallUnsync {
		t.Fatal("delete of a synced document must request an unsync call")
	}

	tr, err = Decide(EventDelete, Snapshot{Status: models.SyncStatusNotSync, Valid: true})
	if err != nil {
		t.Fatalf("delete unsynced: %v", err)
	}
	if tr.CallUnsync || !tr.NoChange {
		t.Fatalf("delete of an unsynced document needs no unsync, got %+v", tr)
	}
}

func TestDecide_InvalidTriggerState(t *testing.T) {
	_, err := Decide(EventTriggerUnsync, Snapshot{Status: models.SyncStatusNotSync, Valid: true})
	if err == nil {
		t.Fatal("unsync of a NOT_SYNC document must fail")
	}
	var se *utils.StatusError
	if !errors.As(err, &se) || se.Code != "INVALID_SYNC_STATE" {
		t.Fatalf("expected INVALID_SYNC_STATE, got %v", err)
	}
}
