package models

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}), &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	return db
}

func TestKeywordSearchCoversDescription(t *testing.T) {
	db := newDryRunDB(t)
	var docs []*Document
	stmt := documentFilterQuery(context.Background(), db, "biz-1", &DocumentFilter{Keyword: "fire"}).
		Find(&docs).Statement

	sql := stmt.SQL.String()
	for _, frag := range []string{"title LIKE ?", "reference_number LIKE ?", "description LIKE ?"} {
		if !strings.Contains(sql, frag) {
			t.Fatalf("keyword search must match %s, got: %s", frag, sql)
		}
	}
	bound := 0
	for _, v := range stmt.Vars {
		if v == "%fire%" {
			bound++
		}
	}
	if bound != 3 {
		t.Fatalf("expected the keyword bound three times, got %d in %v", bound, stmt.Vars)
	}
}

func TestStatisticsScopeFilters(t *testing.T) {
	reg, valid := true, false
	filter := &StatisticsFilter{IsRegulatory: &reg, ValidityStatus: &valid, SyncStatus: SyncStatusSync}

	var count int64
	stmt := statisticsScope(context.Background(), newDryRunDB(t), "biz-1", filter).
		Joins("LEFT JOIN document_types ON document_types.id = documents.document_type_id").
		Where("document_types.id IS NULL").
		Count(&count).Statement

	sql := stmt.SQL.String()
	for _, frag := range []string{
		"documents.business_id = ?",
		"documents.is_regulatory = ?",
		"documents.validity_status = ?",
		"documents.sync_status = ?",
		"LEFT JOIN document_types",
		"document_types.id IS NULL",
	} {
		if !strings.Contains(sql, frag) {
			t.Fatalf("uncategorized count missing %q: %s", frag, sql)
		}
	}
}

func TestStatisticsScopeWithoutFilter(t *testing.T) {
	var count int64
	stmt := statisticsScope(context.Background(), newDryRunDB(t), "biz-1", nil).Count(&count).Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "documents.business_id = ?") {
		t.Fatalf("tenant scope missing: %s", sql)
	}
	if strings.Contains(sql, "is_regulatory") || strings.Contains(sql, "validity_status") {
		t.Fatalf("nil filter must add no conditions: %s", sql)
	}
}

func TestDocumentOrder(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"title asc", "title ASC, id DESC"},
		{"title desc", "title DESC, id DESC"},
		{"Title DESC", "title DESC, id DESC"},
		{"issuance_date", "issuance_date ASC, id DESC"},
		{"", "created_at DESC, id DESC"},
		{"password desc", "created_at DESC, id DESC"},
		{"title; drop table documents", "created_at DESC, id DESC"},
	}
	for _, tc := range cases {
		got := documentOrder(tc.in)
		if got != tc.expected {
			t.Fatalf("documentOrder(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}
