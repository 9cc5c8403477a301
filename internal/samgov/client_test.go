package samgov

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(opportunitiesURL, awardsURL string) *Client {
	c := NewClient("test-key", zap.NewNop().Sugar())
	c.OpportunitiesURL = opportunitiesURL
	c.AwardsURL = awardsURL
	c.backoff = time.Millisecond
	return c
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	if got := FormatDate(d); got != "03/07/2026" {
		t.Errorf("FormatDate = %q, want 03/07/2026", got)
	}
}

func TestPSCFamilyFromNSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"6810-01-234-5678", "6810"},
		{"6810012345678", "6810"},
		{"NSN: 6840-00-111-2222", "6840"},
		{"681", ""},
		{"", ""},
		{"abcd", ""},
	}
	for _, tc := range tests {
		if got := PSCFamilyFromNSN(tc.in); got != tc.want {
			t.Errorf("PSCFamilyFromNSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsConfigured(t *testing.T) {
	if !NewClient("key", zap.NewNop().Sugar()).IsConfigured() {
		t.Error("client with key should be configured")
	}
	if NewClient("  ", zap.NewNop().Sugar()).IsConfigured() {
		t.Error("blank key is not a configuration")
	}
}

func TestSearchOpportunitiesParsesPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"postedFrom": r.URL.Query().Get("postedFrom"),
			"postedTo":   r.URL.Query().Get("postedTo"),
			"ccode":      r.URL.Query().Get("ccode"),
			"api_key":    r.URL.Query().Get("api_key"),
		}
		w.Write([]byte(`{
			"totalRecords": 2,
			"opportunitiesData": [
				{"solicitationNumber": "SPE-1", "title": "Acetone", "classificationCode": "6810",
				 "postedDate": "2026-08-01", "fullParentPathName": "DEPT OF DEFENSE.DLA.DLA AVIATION"},
				{"title": "Broken record without a solicitation number"}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	page, err := c.SearchOpportunities(context.Background(), OpportunitySearchParams{
		PostedFrom: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PostedTo:   time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC),
		PSCCode:    "6810",
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotQuery["postedFrom"] != "08/01/2026" || gotQuery["postedTo"] != "08/08/2026" {
		t.Errorf("date params = %v", gotQuery)
	}
	if gotQuery["ccode"] != "6810" || gotQuery["api_key"] != "test-key" {
		t.Errorf("query params = %v", gotQuery)
	}
	if page.TotalRecords != 2 {
		t.Errorf("TotalRecords = %d, want 2", page.TotalRecords)
	}
	// The malformed record is skipped, not fatal.
	if len(page.Opportunities) != 1 {
		t.Fatalf("parsed %d opportunities, want 1", len(page.Opportunities))
	}
	opp := page.Opportunities[0]
	if opp.SolicitationNumber != "SPE-1" || opp.Agency != "DEPT OF DEFENSE" || opp.Office != "DLA AVIATION" {
		t.Errorf("unexpected normalization: %+v", opp)
	}
}

func TestSearchAwardsJoinsPSCCodes(t *testing.T) {
	var gotCodes string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCodes = r.URL.Query().Get("pscCodes")
		w.Write([]byte(`{"totalRecords": 1, "awardsData": [
			{"piid": "SPE-AWD-1", "productOrServiceCode": "6810", "totalContractValue": "$12,500.00"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	page, err := c.SearchAwards(context.Background(), AwardSearchParams{
		SignedFrom: time.Now().AddDate(-2, 0, 0),
		SignedTo:   time.Now(),
		PSCCodes:   []string{"6810", "6840", "6850"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotCodes != "6810~6840~6850" {
		t.Errorf("pscCodes param = %q, want tilde-joined", gotCodes)
	}
	if len(page.Awards) != 1 || page.Awards[0].TotalValue != 12500 {
		t.Errorf("awards = %+v", page.Awards)
	}
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"totalRecords": 0, "opportunitiesData": []}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.SearchOpportunities(context.Background(), OpportunitySearchParams{
		PostedFrom: time.Now(), PostedTo: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected recovery on third attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.SearchOpportunities(context.Background(), OpportunitySearchParams{
		PostedFrom: time.Now(), PostedTo: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected the last upstream error, got %v", err)
	}
}

func TestGetJSONNeverRetriesClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.SearchOpportunities(context.Background(), OpportunitySearchParams{
		PostedFrom: time.Now(), PostedTo: time.Now(),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("4xx retried: attempts = %d, want 1", attempts)
	}
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Retryable() {
		t.Errorf("4xx must be non-retryable: %v", err)
	}
}

func TestGetOpportunityDetailsResolvesDescription(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/desc", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"description": "<p>NSN: 6810-01-234-5678 QTY: 120 DR</p>"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"opportunitiesData": [
			{"solicitationNumber": "SPE-1", "noticeId": "abc123",
			 "description": "` + srv.URL + `/desc"}
		]}`))
	})

	c := newTestClient(srv.URL, srv.URL)
	details, err := c.GetOpportunityDetails(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if details.ExtractionStrategy != "nsn_qty_pairs" {
		t.Errorf("strategy = %q, want nsn_qty_pairs", details.ExtractionStrategy)
	}
	if len(details.LineItems) != 1 || details.LineItems[0].NSN != "6810-01-234-5678" {
		t.Errorf("line items = %+v", details.LineItems)
	}
	if details.LineItems[0].Quantity != 120 || details.LineItems[0].Unit != "DR" {
		t.Errorf("quantity parse = %+v", details.LineItems[0])
	}
}

func TestGetOpportunityDetailsKeepsMultilineItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"opportunitiesData": [
			{"solicitationNumber": "SPE-2", "noticeId": "n-2",
			 "description": "0001 - sodium hypochlorite solution, 120 DR\n0002 - sulfuric acid, 10 CN"}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	details, err := c.GetOpportunityDetails(context.Background(), "n-2")
	if err != nil {
		t.Fatal(err)
	}
	// Each numbered line must survive flattening as its own item.
	if details.ExtractionStrategy != "numbered_items" {
		t.Fatalf("strategy = %q, want numbered_items", details.ExtractionStrategy)
	}
	if len(details.LineItems) != 2 {
		t.Fatalf("line items = %+v, want 2", details.LineItems)
	}
	if details.LineItems[0].Description != "sodium hypochlorite solution" ||
		details.LineItems[0].Quantity != 120 || details.LineItems[0].Unit != "DR" {
		t.Errorf("first item = %+v", details.LineItems[0])
	}
	if details.LineItems[1].Description != "sulfuric acid" ||
		details.LineItems[1].Quantity != 10 || details.LineItems[1].Unit != "CN" {
		t.Errorf("second item = %+v", details.LineItems[1])
	}
}

func TestGetOpportunityDetailsShortDescriptionFallback(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/desc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	record := `{"solicitationNumber": "SPE-3", "noticeId": "n-3", "title": "Acetone",
		 "description": "` + srv.URL + `/desc"`
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("noticeid") == "with-synopsis" {
			w.Write([]byte(`{"opportunitiesData": [` + record + `,
				 "descriptionText": "Bulk acetone, 55 gallon drums."}]}`))
			return
		}
		w.Write([]byte(`{"opportunitiesData": [` + record + `}]}`))
	})

	c := newTestClient(srv.URL, srv.URL)

	details, err := c.GetOpportunityDetails(context.Background(), "with-synopsis")
	if err != nil {
		t.Fatal(err)
	}
	if details.Opportunity.Description != "Bulk acetone, 55 gallon drums." {
		t.Errorf("description = %q, want the record's short description", details.Opportunity.Description)
	}

	// Without a short description the title is the last resort.
	details, err = c.GetOpportunityDetails(context.Background(), "title-only")
	if err != nil {
		t.Fatal(err)
	}
	if details.Opportunity.Description != "Acetone" {
		t.Errorf("description = %q, want the title fallback", details.Opportunity.Description)
	}
}

func TestGetOpportunityDetailsAttachmentsBestEffort(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/specs.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"opportunitiesData": [
			{"solicitationNumber": "SPE-4", "noticeId": "n-4",
			 "description": "NSN: 6810-01-234-5678 QTY: 120 DR",
			 "resourceLinks": [
				{"name": "specs.pdf", "url": "` + srv.URL + `/specs.pdf", "mimeType": "application/pdf"},
				{"name": "photo.jpg", "url": "` + srv.URL + `/photo.jpg", "mimeType": "image/jpeg"}
			 ]}
		]}`))
	})

	c := newTestClient(srv.URL, srv.URL)
	details, err := c.GetOpportunityDetails(context.Background(), "n-4")
	if err != nil {
		t.Fatalf("attachment failures must not fail the lookup: %v", err)
	}
	if len(details.AttachmentItems) != 0 {
		t.Errorf("attachment items = %+v, want none", details.AttachmentItems)
	}
	if len(details.LineItems) != 1 || details.LineItems[0].NSN != "6810-01-234-5678" {
		t.Errorf("description items = %+v", details.LineItems)
	}
}
