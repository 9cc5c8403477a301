package samgov

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kellerb/sam-watch/internal/models"
)

// ParseError marks a single upstream record that could not be normalized.
// Pages skip-and-log these instead of aborting wholesale.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record parse error: %s (%s)", e.Field, e.Reason)
}

// NormalizeOpportunity converts one untyped upstream record into an
// Opportunity. The upstream schema is not contractually stable, so every
// field read tolerates absence; only the solicitation number is required.
func NormalizeOpportunity(rec map[string]interface{}) (models.Opportunity, error) {
	solnum := stringField(rec, "solicitationNumber")
	if solnum == "" {
		return models.Opportunity{}, &ParseError{Field: "solicitationNumber", Reason: "missing"}
	}

	opp := models.Opportunity{
		NoticeID:           stringField(rec, "noticeId"),
		SolicitationNumber: solnum,
		Title:              stringField(rec, "title"),
		Description:        stringField(rec, "description"),
		PostedDate:         dateField(rec, "postedDate"),
		ResponseDeadline:   dateField(rec, "responseDeadLine", "responseDeadline"),
		PSCCode:            stringField(rec, "classificationCode", "ccode"),
		SetAsideType:       stringField(rec, "typeOfSetAside", "setAside"),
		Agency:             agencyField(rec),
		Office:             officeField(rec),
		UILink:             stringField(rec, "uiLink"),
		ReviewStatus:       models.ReviewStatusNew,
		Raw:                rec,
	}

	// Only the first listed contact is retained.
	if contacts, ok := rec["pointOfContact"].([]interface{}); ok && len(contacts) > 0 {
		if first, ok := contacts[0].(map[string]interface{}); ok {
			opp.Contact = models.Contact{
				Name:  stringField(first, "fullName", "name"),
				Email: stringField(first, "email"),
				Phone: stringField(first, "phone"),
			}
		}
	}

	for _, raw := range sliceField(rec, "resourceLinks") {
		switch link := raw.(type) {
		case string:
			if link != "" {
				opp.Attachments = append(opp.Attachments, models.Attachment{URL: link})
			}
		case map[string]interface{}:
			opp.Attachments = append(opp.Attachments, models.Attachment{
				Name:     stringField(link, "name", "fileName"),
				URL:      stringField(link, "url", "link"),
				MimeType: stringField(link, "mimeType", "type"),
			})
		}
	}

	if awardRec, ok := rec["award"].(map[string]interface{}); ok {
		award := &models.Award{
			Amount: floatField(awardRec, "amount"),
			Date:   dateField(awardRec, "date"),
		}
		if awardee, ok := awardRec["awardee"].(map[string]interface{}); ok {
			award.Awardee = stringField(awardee, "name")
		} else {
			award.Awardee = stringField(awardRec, "awardee")
		}
		opp.Award = award
	}

	return opp, nil
}

// NormalizeAward converts one untyped award record into a ContractAward.
// Per-unit price varies by contract type and is frequently absent; it is
// extracted opportunistically and left nil when no positive value is found.
func NormalizeAward(rec map[string]interface{}) (models.ContractAward, error) {
	contractNumber := stringField(rec, "piid", "contractNumber", "awardId")
	if contractNumber == "" {
		return models.ContractAward{}, &ParseError{Field: "piid", Reason: "missing"}
	}

	award := models.ContractAward{
		ContractNumber:  contractNumber,
		PSCCode:         stringField(rec, "productOrServiceCode", "pscCode"),
		NAICSCode:       stringField(rec, "naicsCode", "naics"),
		SignedDate:      dateField(rec, "signedDate", "dateSigned"),
		TotalValue:      floatField(rec, "totalContractValue", "baseAndAllOptionsValue"),
		ObligatedAmount: floatField(rec, "actionObligation", "obligatedAmount"),
		Agency:          stringField(rec, "contractingAgency", "agency"),
		Description:     stringField(rec, "description", "descriptionOfRequirement"),
		Raw:             rec,
	}

	if vendor, ok := rec["vendor"].(map[string]interface{}); ok {
		award.AwardeeName = stringField(vendor, "name", "vendorName")
		award.AwardeeCage = stringField(vendor, "cageCode")
		award.AwardeeUEI = stringField(vendor, "ueiSAM", "uei")
	} else {
		award.AwardeeName = stringField(rec, "vendorName", "awardeeName")
		award.AwardeeCage = stringField(rec, "cageCode")
		award.AwardeeUEI = stringField(rec, "ueiSAM")
	}

	if qty := floatField(rec, "quantity", "quantityOrdered"); qty > 0 {
		award.Quantity = &qty
	}

	if price := extractUnitPrice(rec, award.ObligatedAmount, award.Quantity); price > 0 {
		award.UnitPrice = &price
	}

	return award, nil
}

// extractUnitPrice digs through the nesting variants different contract types
// use, falling back to obligation divided by quantity.
func extractUnitPrice(rec map[string]interface{}, obligated float64, qty *float64) float64 {
	if price := floatField(rec, "unitPrice"); price > 0 {
		return price
	}
	if pricing, ok := rec["pricing"].(map[string]interface{}); ok {
		if price := floatField(pricing, "unitPrice", "pricePerUnit"); price > 0 {
			return price
		}
	}
	for _, raw := range sliceField(rec, "lineItems") {
		if item, ok := raw.(map[string]interface{}); ok {
			if price := floatField(item, "unitPrice"); price > 0 {
				return price
			}
		}
	}
	if qty != nil && *qty > 0 && obligated > 0 {
		return obligated / *qty
	}
	return 0
}

// SanitizeDescriptionHTML strips unsafe tags from upstream HTML bodies.
func SanitizeDescriptionHTML(s string) string {
	return bluemonday.UGCPolicy().Sanitize(s)
}

// HTMLToText flattens HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var blockBoundaryRe = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|tr|h[1-6])>`)

// HTMLToLines flattens HTML to plain text while preserving line boundaries.
// Block-level tag ends and <br> become newlines, so line-anchored parsing
// downstream still sees one item per line. Whitespace is collapsed within
// each line and blank lines are dropped.
func HTMLToLines(html string) string {
	withBreaks := blockBoundaryRe.ReplaceAllString(html, "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(withBreaks))
	if err != nil {
		return withBreaks
	}
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
	"2006-01-02",
	"01/02/2006",
	"2006-01-02 15:04:05",
}

func dateField(m map[string]interface{}, keys ...string) *time.Time {
	raw := stringField(m, keys...)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch typed := v.(type) {
			case string:
				if s := strings.TrimSpace(typed); s != "" {
					return s
				}
			case float64:
				return strconv.FormatFloat(typed, 'f', -1, 64)
			}
		}
	}
	return ""
}

func floatField(m map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch typed := m[key].(type) {
		case float64:
			return typed
		case int:
			return float64(typed)
		case string:
			clean := strings.ReplaceAll(strings.ReplaceAll(typed, "$", ""), ",", "")
			if v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func intField(m map[string]interface{}, keys ...string) int {
	return int(floatField(m, keys...))
}

func sliceField(m map[string]interface{}, keys ...string) []interface{} {
	for _, key := range keys {
		if v, ok := m[key].([]interface{}); ok {
			return v
		}
	}
	return nil
}

func agencyField(rec map[string]interface{}) string {
	if full := stringField(rec, "fullParentPathName"); full != "" {
		// "DEPT OF DEFENSE.DEFENSE LOGISTICS AGENCY.DLA AVIATION": the
		// first segment is the department.
		if idx := strings.Index(full, "."); idx > 0 {
			return full[:idx]
		}
		return full
	}
	return stringField(rec, "department", "agency")
}

func officeField(rec map[string]interface{}) string {
	if full := stringField(rec, "fullParentPathName"); full != "" {
		if idx := strings.LastIndex(full, "."); idx >= 0 && idx < len(full)-1 {
			return full[idx+1:]
		}
	}
	if office, ok := rec["officeAddress"].(map[string]interface{}); ok {
		return stringField(office, "city")
	}
	return stringField(rec, "office", "subTier")
}
