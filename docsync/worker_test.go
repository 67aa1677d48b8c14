package docsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/models"
)

func TestHandleJobWithoutClient(t *testing.T) {
	// A missing DOC_INDEX_BASE_URL leaves the service without a gateway
	// client; jobs that need one must fail with an error, not panic.
	s := &Service{}
	for _, name := range []string{
		models.JobSyncDocument,
		models.JobResyncDocument,
		models.JobRemoveResyncDocument,
		models.JobUnsyncDocument,
	} {
		job := &models.SyncJob{JobName: name, BusinessId: "biz-1"}
		if err := s.HandleJob(context.Background(), job); err == nil {
			t.Fatalf("%s without a client: expected error, got nil", name)
		}
	}
}

func TestBuildMetadata(t *testing.T) {
	issued := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	effective := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	doc := &models.Document{
		Title:           "Fire Safety Act",
		ReferenceNumber: "FSA-2024-01",
		Key:             "biz-1/documents/abc.pdf",
		FileUrl:         "https://storage.example.com/biz-1/documents/abc.pdf",
		IsRegulatory:    true,
		ValidityStatus:  true,
		IssuanceDate:    &issued,
		EffectiveDate:   &effective,
		IssuingBody:     &models.IssuingBody{Name: "Ministry of Construction"},
		DocumentType:    &models.DocumentType{Name: "Act"},
		DocumentField:   &models.DocumentField{Name: "Construction"},
	}

	meta := buildMetadata(doc)

	if meta.Title != "Fire Safety Act" || meta.ReferenceNumber != "FSA-2024-01" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.IsRegulatory != "regulatory document" {
		t.Fatalf("expected %q, got %q", "regulatory document", meta.IsRegulatory)
	}
	if meta.ValidityStatus != "valid" {
		t.Fatalf("expected %q, got %q", "valid", meta.ValidityStatus)
	}
	if meta.IssuanceDate != "2024-03-15" {
		t.Fatalf("expected issuance date %q, got %q", "2024-03-15", meta.IssuanceDate)
	}
	if meta.EffectiveDate != "2024-04-01" {
		t.Fatalf("expected effective date %q, got %q", "2024-04-01", meta.EffectiveDate)
	}
	if meta.InvalidDate != "" {
		t.Fatalf("nil date should format empty, got %q", meta.InvalidDate)
	}
	if meta.IssuingBody != "Ministry of Construction" || meta.DocumentType != "Act" || meta.DocumentField != "Construction" {
		t.Fatalf("reference names not carried over: %+v", meta)
	}
}

func TestBuildMetadataDefaults(t *testing.T) {
	meta := buildMetadata(&models.Document{Title: "Internal Memo"})

	if meta.IsRegulatory != "non-regulatory document" {
		t.Fatalf("expected %q, got %q", "non-regulatory document", meta.IsRegulatory)
	}
	if meta.ValidityStatus != "expired" {
		t.Fatalf("expected %q, got %q", "expired", meta.ValidityStatus)
	}
	if meta.IssuingBody != "" || meta.DocumentType != "" || meta.DocumentField != "" {
		t.Fatalf("nil references should map to empty labels: %+v", meta)
	}
	if meta.IssuanceDate != "" || meta.EffectiveDate != "" || meta.InvalidDate != "" {
		t.Fatalf("nil dates should map to empty strings: %+v", meta)
	}
}

func TestDocumentMetadataWireKeys(t *testing.T) {
	raw, err := json.Marshal(DocumentMetadata{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := []string{
		"title", "referenceNumber", "issuingBody", "documentType",
		"documentField", "issuanceDate", "effectiveDate", "isRegulatory",
		"validityStatus", "invalidDate", "key", "fileUrl",
	}
	if len(body) != len(keys) {
		t.Fatalf("expected %d keys, got %d: %v", len(keys), len(body), body)
	}
	for _, k := range keys {
		if _, ok := body[k]; !ok {
			t.Fatalf("gateway key %q missing from payload %s", k, raw)
		}
	}
}
