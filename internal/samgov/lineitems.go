package samgov

import (
	"regexp"
	"strconv"
	"strings"
)

// LineItem is one product line pulled out of a free-text notice description.
type LineItem struct {
	NSN         string  `json:"nsn,omitempty"`
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
}

// lineItemStrategy is one named extraction heuristic. Strategies run in
// priority order and extraction stops at the first non-empty result set.
// This is a best-effort parse, not a guaranteed one.
type lineItemStrategy struct {
	name    string
	extract func(text string) []LineItem
}

var lineItemStrategies = []lineItemStrategy{
	{name: "nsn_qty_pairs", extract: extractNSNQtyPairs},
	{name: "numbered_items", extract: extractNumberedItems},
	{name: "leading_quantity", extract: extractLeadingQuantity},
}

// ExtractLineItems runs the strategy chain over the given text and returns
// the extracted items plus the name of the strategy that produced them.
func ExtractLineItems(text string) ([]LineItem, string) {
	if strings.TrimSpace(text) == "" {
		return nil, ""
	}
	for _, strategy := range lineItemStrategies {
		if items := strategy.extract(text); len(items) > 0 {
			return items, strategy.name
		}
	}
	return nil, ""
}

var (
	nsnRe = regexp.MustCompile(`(?i)NSN[:#\s]*([0-9]{4})[- ]?([0-9]{2})[- ]?([0-9]{3})[- ]?([0-9]{4})`)
	qtyRe = regexp.MustCompile(`(?i)QTY[:\s]*([0-9][0-9,]*)\s*([A-Z]{2,4})?`)

	// "0001 - sodium hypochlorite solution, 55 gal drums, 120 DR"
	numberedItemRe = regexp.MustCompile(`(?m)^\s*([0-9]{4})\s*[-–]\s*(.+?),\s*([0-9][0-9,]*)\s+([A-Za-z]{2,6})\s*$`)

	unitTokens       = `EA|EACH|BX|BOX|BOXES|CS|CASE|CASES|DR|DRUM|DRUMS|GL|GAL|GALLON|GALLONS|CN|CAN|CANS|PG|KT|KIT|KITS|LB|LBS|PAIL|PAILS|BTL|TUBE|TUBES`
	leadingQtyRe     = regexp.MustCompile(`(?i)\b([0-9][0-9,]*)\s+(` + unitTokens + `)\b`)
	leadingQtyWindow = 100
)

// extractNSNQtyPairs finds explicit "NSN: 6810-01-234-5678 ... QTY: 120 DR"
// pairs, scanning forward from each NSN for the nearest quantity.
func extractNSNQtyPairs(text string) []LineItem {
	nsnMatches := nsnRe.FindAllStringSubmatchIndex(text, -1)
	if len(nsnMatches) == 0 {
		return nil
	}

	var items []LineItem
	for i, loc := range nsnMatches {
		// Rebuild the canonical dashed form from the four digit groups.
		nsn := text[loc[2]:loc[3]] + "-" + text[loc[4]:loc[5]] + "-" +
			text[loc[6]:loc[7]] + "-" + text[loc[8]:loc[9]]

		// Pair with the first QTY between this NSN and the next one.
		windowEnd := len(text)
		if i+1 < len(nsnMatches) {
			windowEnd = nsnMatches[i+1][0]
		}
		item := LineItem{NSN: nsn}
		if qty := qtyRe.FindStringSubmatch(text[loc[1]:windowEnd]); qty != nil {
			item.Quantity = parseQuantity(qty[1])
			item.Unit = strings.ToUpper(qty[2])
		}
		items = append(items, item)
	}
	return items
}

// extractNumberedItems parses numbered line-item blocks of the
// "0001 - description, qty unit" form.
func extractNumberedItems(text string) []LineItem {
	matches := numberedItemRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	items := make([]LineItem, 0, len(matches))
	for _, m := range matches {
		items = append(items, LineItem{
			Description: strings.TrimSpace(m[2]),
			Quantity:    parseQuantity(m[3]),
			Unit:        strings.ToUpper(m[4]),
		})
	}
	return items
}

// extractLeadingQuantity is the last resort: a single "<number> <unit>" match
// within the first 100 characters of the description.
func extractLeadingQuantity(text string) []LineItem {
	window := text
	if len(window) > leadingQtyWindow {
		window = window[:leadingQtyWindow]
	}
	m := leadingQtyRe.FindStringSubmatch(window)
	if m == nil {
		return nil
	}
	return []LineItem{{
		Quantity: parseQuantity(m[1]),
		Unit:     strings.ToUpper(m[2]),
	}}
}

func parseQuantity(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
