package models

import "testing"

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name          string
		page, limit   int
		expectedPage  int
		expectedLimit int
	}{
		{"defaults for zero values", 0, 0, 1, DefaultPageLimit},
		{"negative page clamps to one", -3, 10, 1, 10},
		{"limit above cap clamps", 2, 500, 2, MaxPageLimit},
		{"in-range values pass through", 3, 25, 3, 25},
	}
	for _, tc := range cases {
		got := NormalizePage(tc.page, tc.limit)
		if got.Page != tc.expectedPage || got.Limit != tc.expectedLimit {
			t.Fatalf("%s: NormalizePage(%d, %d) expected (%d, %d), got (%d, %d)",
				tc.name, tc.page, tc.limit, tc.expectedPage, tc.expectedLimit, got.Page, got.Limit)
		}
	}
}

func TestPageRequestOffset(t *testing.T) {
	cases := []struct {
		page, limit, expected int
	}{
		{1, 20, 0},
		{2, 20, 20},
		{5, 25, 100},
	}
	for _, tc := range cases {
		got := PageRequest{Page: tc.page, Limit: tc.limit}.Offset()
		if got != tc.expected {
			t.Fatalf("Offset for page %d limit %d expected %d, got %d", tc.page, tc.limit, tc.expected, got)
		}
	}
}

func TestPageRequestWithTotal(t *testing.T) {
	cases := []struct {
		total         int64
		limit         int
		expectedPages int64
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{100, 25, 4},
	}
	for _, tc := range cases {
		p := PageRequest{Page: 1, Limit: tc.limit}.WithTotal(tc.total)
		if p.TotalPages != tc.expectedPages {
			t.Fatalf("WithTotal(%d) at limit %d expected %d pages, got %d", tc.total, tc.limit, tc.expectedPages, p.TotalPages)
		}
		if p.Total != tc.total {
			t.Fatalf("WithTotal(%d) expected total carried over, got %d", tc.total, p.Total)
		}
	}
}
