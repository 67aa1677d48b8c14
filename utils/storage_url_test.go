package utils

import "testing"

func TestBuildObjectAccessURL(t *testing.T) {
	cases := []struct {
		name     string
		base     string
		gcsURL   string
		bucket   string
		key      string
		expected string
	}{
		{"plain base joins with slash", "https://cdn.example.com", "", "", "biz-1/documents/a.pdf", "https://cdn.example.com/biz-1/documents/a.pdf"},
		{"base with trailing slash", "https://cdn.example.com/", "", "", "biz-1/documents/a.pdf", "https://cdn.example.com/biz-1/documents/a.pdf"},
		{"placeholder base", "https://cdn.example.com/files/{objectKey}", "", "", "biz-1/documents/a.pdf", "https://cdn.example.com/files/biz-1/documents/a.pdf"},
		{"query base escapes key", "https://cdn.example.com/get?key=", "", "", "biz-1/documents/a.pdf", "https://cdn.example.com/get?key=biz-1%2Fdocuments%2Fa.pdf"},
		{"gcs fallback", "", "storage.googleapis.com", "docs-bucket", "biz-1/documents/a.pdf", "https://storage.googleapis.com/docs-bucket/biz-1/documents/a.pdf"},
		{"no env returns the key", "", "", "", "biz-1/documents/a.pdf", "biz-1/documents/a.pdf"},
	}
	for _, tc := range cases {
		t.Setenv("STORAGE_ACCESS_BASE_URL", tc.base)
		t.Setenv("GCS_URL", tc.gcsURL)
		t.Setenv("GCS_BUCKET", tc.bucket)
		got := BuildObjectAccessURL(tc.key)
		if got != tc.expected {
			t.Fatalf("%s: BuildObjectAccessURL(%q) expected %q, got %q", tc.name, tc.key, tc.expected, got)
		}
	}
}

func TestExtractObjectKeyFromURL(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("SP_URL", "")
	t.Setenv("SP_BUCKET", "")

	cases := []struct {
		name     string
		in       string
		expected string
	}{
		{"raw key passes through", "biz-1/documents/a.pdf", "biz-1/documents/a.pdf"},
		{"traversal rejected", "biz-1/../secrets/a.pdf", ""},
		{"gs scheme", "gs://docs-bucket/biz-1/documents/a.pdf", "biz-1/documents/a.pdf"},
		{"public gcs url", "https://storage.googleapis.com/docs-bucket/biz-1/documents/a.pdf", "biz-1/documents/a.pdf"},
		{"bucket host gcs url", "https://docs-bucket.storage.googleapis.com/biz-1/documents/a.pdf", "biz-1/documents/a.pdf"},
		{"query key", "https://cdn.example.com/get?key=biz-1%2Fdocuments%2Fa.pdf", "biz-1/documents/a.pdf"},
		{"empty input", "", ""},
		{"unrecognized url", "https://other.example.com/x", ""},
	}
	for _, tc := range cases {
		got := ExtractObjectKeyFromURL(tc.in)
		if got != tc.expected {
			t.Fatalf("%s: ExtractObjectKeyFromURL(%q) expected %q, got %q", tc.name, tc.in, tc.expected, got)
		}
	}
}

func TestBuildThenExtractRoundTrip(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("GCS_URL", "storage.googleapis.com")
	t.Setenv("GCS_BUCKET", "docs-bucket")

	key := "biz-1/documents/report-2024.pdf"
	got := ExtractObjectKeyFromURL(BuildObjectAccessURL(key))
	if got != key {
		t.Fatalf("round trip expected %q, got %q", key, got)
	}
}
