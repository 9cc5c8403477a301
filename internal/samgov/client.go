package samgov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
)

const (
	defaultOpportunitiesURL = "https://api.sam.gov/opportunities/v2/search"
	defaultAwardsURL        = "https://api.sam.gov/federalcontracts/v1/search"

	// Upstream page-size ceiling for both endpoints.
	MaxPageSize = 1000

	// Award search accepts many PSC codes per call, comma is a reserved
	// separator upstream so codes are joined with a tilde.
	maxAwardPSCCodes  = 100
	pscJoinDelimiter  = "~"
	maxRetries        = 3
	retryBackoffStart = 2 * time.Second
)

// APIError is a non-2xx upstream response. 4xx responses are treated as
// caller-fixable and are never retried.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// Client talks to the SAM.gov opportunity search and the historical contract
// award search endpoints. Both are keyed by the same static API credential.
type Client struct {
	HTTPClient       *http.Client
	OpportunitiesURL string
	AwardsURL        string

	apiKey  string
	log     *zap.SugaredLogger
	backoff time.Duration
}

func NewClient(apiKey string, log *zap.SugaredLogger) *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		OpportunitiesURL: defaultOpportunitiesURL,
		AwardsURL:        defaultAwardsURL,
		apiKey:           apiKey,
		log:              log,
		backoff:          retryBackoffStart,
	}
}

// IsConfigured reports whether an API credential is present. Callers use this
// to decide between live fetching and cache-only operation.
func (c *Client) IsConfigured() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// FormatDate renders a calendar date in the MM/DD/YYYY form both endpoints
// independently require.
func FormatDate(t time.Time) string {
	return t.Format("01/02/2006")
}

// PSCFamilyFromNSN derives the 4-character classification family from a
// national stock number: the first four digits after separators are removed.
// Returns "" when the input has fewer than four digits.
func PSCFamilyFromNSN(nsn string) string {
	var digits []byte
	for i := 0; i < len(nsn); i++ {
		if nsn[i] >= '0' && nsn[i] <= '9' {
			digits = append(digits, nsn[i])
			if len(digits) == 4 {
				return string(digits)
			}
		}
	}
	return ""
}

type OpportunitySearchParams struct {
	PostedFrom      time.Time
	PostedTo        time.Time
	PSCCode         string // upstream accepts only one per call
	TitleKeyword    string
	ProcurementType string
	Limit           int
	Offset          int
}

type OpportunityPage struct {
	TotalRecords  int
	Opportunities []models.Opportunity
}

// SearchOpportunities fetches one page of opportunity notices. Individual
// records that cannot be normalized are skipped and logged rather than
// failing the page.
func (c *Client) SearchOpportunities(ctx context.Context, params OpportunitySearchParams) (*OpportunityPage, error) {
	limit := params.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("postedFrom", FormatDate(params.PostedFrom))
	q.Set("postedTo", FormatDate(params.PostedTo))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(params.Offset))
	if params.PSCCode != "" {
		q.Set("ccode", params.PSCCode)
	}
	if params.TitleKeyword != "" {
		q.Set("title", params.TitleKeyword)
	}
	if params.ProcurementType != "" {
		q.Set("ptype", params.ProcurementType)
	}

	payload, err := c.getJSON(ctx, c.OpportunitiesURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	page := &OpportunityPage{
		TotalRecords: intField(payload, "totalRecords"),
	}
	for _, raw := range sliceField(payload, "opportunitiesData") {
		rec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		opp, err := NormalizeOpportunity(rec)
		if err != nil {
			c.log.Warnw("skipping malformed opportunity record", "error", err)
			continue
		}
		page.Opportunities = append(page.Opportunities, opp)
	}

	return page, nil
}

type AwardSearchParams struct {
	SignedFrom time.Time
	SignedTo   time.Time
	PSCCodes   []string
	NAICSCode  string
	Limit      int
	Offset     int
}

type AwardPage struct {
	TotalRecords int
	Awards       []models.ContractAward
}

// SearchAwards fetches one page of historical contract awards.
func (c *Client) SearchAwards(ctx context.Context, params AwardSearchParams) (*AwardPage, error) {
	limit := params.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	codes := params.PSCCodes
	if len(codes) > maxAwardPSCCodes {
		codes = codes[:maxAwardPSCCodes]
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("signedDateFrom", FormatDate(params.SignedFrom))
	q.Set("signedDateTo", FormatDate(params.SignedTo))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(params.Offset))
	if len(codes) > 0 {
		q.Set("pscCodes", strings.Join(codes, pscJoinDelimiter))
	}
	if params.NAICSCode != "" {
		q.Set("naicsCode", params.NAICSCode)
	}

	payload, err := c.getJSON(ctx, c.AwardsURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	page := &AwardPage{
		TotalRecords: intField(payload, "totalRecords"),
	}
	for _, raw := range sliceField(payload, "awardsData") {
		rec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		award, err := NormalizeAward(rec)
		if err != nil {
			c.log.Warnw("skipping malformed award record", "error", err)
			continue
		}
		page.Awards = append(page.Awards, award)
	}

	return page, nil
}

// OpportunityDetails is a single notice with its description resolved, a
// best-effort line-item parse of that description, and whatever line items
// could be pulled from its PDF attachments.
type OpportunityDetails struct {
	Opportunity        models.Opportunity    `json:"opportunity"`
	LineItems          []LineItem            `json:"line_items"`
	ExtractionStrategy string                `json:"extraction_strategy,omitempty"`
	AttachmentItems    []AttachmentLineItems `json:"attachment_line_items,omitempty"`
}

// AttachmentLineItems groups the line items extracted from one attachment.
type AttachmentLineItems struct {
	Attachment string     `json:"attachment"`
	Strategy   string     `json:"strategy"`
	Items      []LineItem `json:"items"`
}

// GetOpportunityDetails fetches one notice by its internal notice id. When
// the description field is itself a signed URL the body is fetched in a
// secondary request; failure there is non-fatal and the record's short
// description (or failing that, its title) is kept instead. Attachment
// extraction is best-effort and never fails the lookup.
func (c *Client) GetOpportunityDetails(ctx context.Context, noticeID string) (*OpportunityDetails, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("noticeid", noticeID)
	// The notice-id lookup still requires a posted-date window upstream;
	// a wide one keeps old notices reachable.
	now := time.Now()
	q.Set("postedFrom", FormatDate(now.AddDate(-1, 0, 0)))
	q.Set("postedTo", FormatDate(now))
	q.Set("limit", "1")

	payload, err := c.getJSON(ctx, c.OpportunitiesURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	records := sliceField(payload, "opportunitiesData")
	if len(records) == 0 {
		return nil, fmt.Errorf("notice %s not found", noticeID)
	}
	rec, ok := records[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("notice %s has unreadable payload", noticeID)
	}

	opp, err := NormalizeOpportunity(rec)
	if err != nil {
		return nil, fmt.Errorf("normalizing notice %s: %w", noticeID, err)
	}

	if looksLikeURL(opp.Description) {
		if body, err := c.fetchDescriptionBody(ctx, opp.Description); err == nil {
			opp.Description = body
		} else {
			c.log.Warnw("description fetch failed, keeping short description",
				"notice_id", noticeID, "error", err)
			if short := stringField(rec, "descriptionText", "synopsis", "summary"); short != "" {
				opp.Description = short
			} else {
				opp.Description = stringField(rec, "title")
			}
		}
	}

	details := &OpportunityDetails{Opportunity: opp}
	// Line structure matters here: the numbered-items strategy anchors on
	// line starts, so the description is flattened with newlines intact.
	details.LineItems, details.ExtractionStrategy = ExtractLineItems(HTMLToLines(opp.Description))

	for _, att := range opp.Attachments {
		items, strategy, err := c.ExtractAttachmentLineItems(ctx, att)
		if err != nil {
			c.log.Debugw("attachment line-item extraction skipped",
				"notice_id", noticeID, "attachment", att.Name, "error", err)
			continue
		}
		if len(items) == 0 {
			continue
		}
		details.AttachmentItems = append(details.AttachmentItems, AttachmentLineItems{
			Attachment: att.Name,
			Strategy:   strategy,
			Items:      items,
		})
	}

	return details, nil
}

// fetchDescriptionBody resolves a signed description URL. Single attempt:
// callers treat failure as non-fatal.
func (c *Client) fetchDescriptionBody(ctx context.Context, descURL string) (string, error) {
	u := descURL
	if c.apiKey != "" && !strings.Contains(u, "api_key=") {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "api_key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating description request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("description request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("reading description body: %w", err)
	}

	// The endpoint usually wraps the text in {"description": "..."}.
	var wrapper map[string]interface{}
	if err := json.Unmarshal(body, &wrapper); err == nil {
		if desc := stringField(wrapper, "description"); desc != "" {
			return SanitizeDescriptionHTML(desc), nil
		}
	}
	return SanitizeDescriptionHTML(string(body)), nil
}

// getJSON issues a GET with the retry policy: up to 3 attempts, exponential
// backoff starting at 2s, 4xx never retried. The last error is surfaced when
// retries are exhausted.
func (c *Client) getJSON(ctx context.Context, rawURL string) (map[string]interface{}, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		payload, err := c.getJSONOnce(ctx, rawURL)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if apiErr, ok := err.(*APIError); ok && !apiErr.Retryable() {
			return nil, err
		}
		if attempt == maxRetries {
			break
		}

		c.log.Warnw("upstream request failed, retrying",
			"attempt", attempt, "backoff", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, rawURL string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return payload, nil
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
