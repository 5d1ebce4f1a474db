package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"", 1, 25},
		{"page=3&per_page=10", 3, 10},
		{"per_page=500", 1, 100},
		{"page=0&per_page=-5", 1, 25},
		{"page=abc&per_page=xyz", 1, 25},
		{"status=open&page=2", 2, 25},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/incidents?"+tt.query, nil)
			p := ParsePagination(r)

			if p.Page != tt.wantPage {
				t.Errorf("page = %d, want %d", p.Page, tt.wantPage)
			}
			if p.PerPage != tt.wantPerPage {
				t.Errorf("per_page = %d, want %d", p.PerPage, tt.wantPerPage)
			}
		})
	}
}

func TestPaginationParams_Offset(t *testing.T) {
	if got := (PaginationParams{Page: 1, PerPage: 25}).Offset(); got != 0 {
		t.Errorf("first page offset = %d, want 0", got)
	}
	if got := (PaginationParams{Page: 3, PerPage: 10}).Offset(); got != 20 {
		t.Errorf("third page offset = %d, want 20", got)
	}
}

func TestPaginationParams_Meta(t *testing.T) {
	tests := []struct {
		name      string
		perPage   int
		total     int64
		wantPages int
	}{
		{"exact division", 10, 100, 10},
		{"with remainder", 10, 101, 11},
		{"no incidents", 25, 0, 0},
		{"one incident", 25, 1, 1},
		{"zero per page", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := PaginationParams{Page: 2, PerPage: tt.perPage}.Meta(tt.total)
			if meta.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", meta.TotalPages, tt.wantPages)
			}
			if meta.Page != 2 || meta.PerPage != tt.perPage || meta.Total != tt.total {
				t.Errorf("unexpected meta %+v", meta)
			}
		})
	}
}
