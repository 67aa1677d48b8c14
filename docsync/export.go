package docsync

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/docs_backend/models"
)

var exportHeadings = []string{
	"Title", "ReferenceNumber", "DocumentType", "DocumentField", "IssuingBody",
	"IssuanceDate", "EffectiveDate", "Regulatory", "Validity", "SyncStatus",
}

// BuildDocumentsWorkbook renders the rows as an xlsx workbook in memory.
func BuildDocumentsWorkbook(docs []*models.Document) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}

	// Add headers
	for i, h := range exportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(sheetName, cell, h)
	}

	// Add data
	for rowIdx, doc := range docs {
		values := exportRow(doc)
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(sheetName, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return &buf, nil
}

func exportRow(doc *models.Document) []interface{} {
	meta := buildMetadata(doc)
	return []interface{}{
		meta.Title,
		meta.ReferenceNumber,
		meta.DocumentType,
		meta.DocumentField,
		meta.IssuingBody,
		meta.IssuanceDate,
		meta.EffectiveDate,
		meta.IsRegulatory,
		meta.ValidityStatus,
		string(doc.SyncStatus),
	}
}
