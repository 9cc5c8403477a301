package db

import (
	"strings"
	"testing"
	"time"
)

func TestBuildOpportunityWhereEmpty(t *testing.T) {
	where, args := buildOpportunityWhere(ListParams{})
	if where != "WHERE 1=1" {
		t.Errorf("expected bare clause, got %q", where)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestBuildOpportunityWhereAllFilters(t *testing.T) {
	posted := time.Now().AddDate(0, 0, -30)
	where, args := buildOpportunityWhere(ListParams{
		Query:       "nitrile gloves",
		PSCCode:     "6810",
		Agency:      "DLA",
		Status:      "new",
		PostedAfter: &posted,
		ActiveOnly:  true,
	})

	for _, fragment := range []string{
		"title ILIKE",
		"psc_code = $2",
		"agency ILIKE",
		"review_status = $4",
		"posted_date >= $5",
		"response_deadline IS NULL OR response_deadline >= NOW()",
	} {
		if !strings.Contains(where, fragment) {
			t.Errorf("clause missing %q: %s", fragment, where)
		}
	}
	if len(args) != 5 {
		t.Errorf("expected 5 args, got %d", len(args))
	}
}

func TestBuildOpportunityWhereStatusAll(t *testing.T) {
	where, args := buildOpportunityWhere(ListParams{Status: "all"})
	if strings.Contains(where, "review_status") {
		t.Errorf("status 'all' must not constrain review_status: %s", where)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestSanitizeStringSlice(t *testing.T) {
	got := sanitizeStringSlice([]string{" 6810 ", "", "  ", "6840"})
	if len(got) != 2 || got[0] != "6810" || got[1] != "6840" {
		t.Errorf("unexpected result: %v", got)
	}
}
