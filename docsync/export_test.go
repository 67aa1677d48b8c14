package docsync

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/docs_backend/models"
)

func TestBuildDocumentsWorkbook(t *testing.T) {
	docs := []*models.Document{
		{
			Title:           "Fire Safety Act",
			ReferenceNumber: "FSA-2024-01",
			IsRegulatory:    true,
			ValidityStatus:  true,
			SyncStatus:      models.SyncStatusSync,
			DocumentType:    &models.DocumentType{Name: "Act"},
		},
		{
			Title:      "Internal Memo",
			SyncStatus: models.SyncStatusNotSync,
		},
	}

	buf, err := BuildDocumentsWorkbook(docs)
	if err != nil {
		t.Fatalf("BuildDocumentsWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Title" || rows[0][9] != "SyncStatus" {
		t.Fatalf("unexpected header row: %v", rows[0])
	}
	if rows[1][0] != "Fire Safety Act" || rows[1][7] != "regulatory document" || rows[1][9] != "SYNC" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][0] != "Internal Memo" || rows[2][8] != "expired" {
		t.Fatalf("unexpected second row: %v", rows[2])
	}
}
