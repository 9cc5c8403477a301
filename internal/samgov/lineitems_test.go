package samgov

import "testing"

func TestExtractLineItemsNSNPairs(t *testing.T) {
	text := `The Defense Logistics Agency requires the following:
NSN: 6810-01-234-5678 QTY: 120 DR
NSN 6840002223333 QTY: 1,500 EA
Delivery within 90 days.`

	items, strategy := ExtractLineItems(text)
	if strategy != "nsn_qty_pairs" {
		t.Fatalf("strategy = %q, want nsn_qty_pairs", strategy)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].NSN != "6810-01-234-5678" || items[0].Quantity != 120 || items[0].Unit != "DR" {
		t.Errorf("first item = %+v", items[0])
	}
	// Undashed NSN is rebuilt into the canonical dashed form.
	if items[1].NSN != "6840-00-222-3333" || items[1].Quantity != 1500 || items[1].Unit != "EA" {
		t.Errorf("second item = %+v", items[1])
	}
}

func TestExtractLineItemsNumbered(t *testing.T) {
	text := `0001 - sodium hypochlorite solution, 55 gal drums, 120 DR
0002 - isopropyl alcohol 99%, 2,400 CN`

	items, strategy := ExtractLineItems(text)
	if strategy != "numbered_items" {
		t.Fatalf("strategy = %q, want numbered_items", strategy)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Description != "sodium hypochlorite solution, 55 gal drums" || items[0].Quantity != 120 {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].Quantity != 2400 || items[1].Unit != "CN" {
		t.Errorf("second item = %+v", items[1])
	}
}

func TestExtractLineItemsLeadingQuantity(t *testing.T) {
	items, strategy := ExtractLineItems("Purchase of 300 GALLONS of industrial degreaser for depot maintenance.")
	if strategy != "leading_quantity" {
		t.Fatalf("strategy = %q, want leading_quantity", strategy)
	}
	if len(items) != 1 || items[0].Quantity != 300 || items[0].Unit != "GALLONS" {
		t.Errorf("items = %+v", items)
	}
}

func TestExtractLineItemsStrategyPriority(t *testing.T) {
	// Text matches both the NSN and leading-quantity patterns; the
	// higher-priority strategy wins.
	text := "500 EA required. NSN: 6810-01-234-5678 QTY: 500 EA"
	items, strategy := ExtractLineItems(text)
	if strategy != "nsn_qty_pairs" {
		t.Errorf("strategy = %q, want nsn_qty_pairs", strategy)
	}
	if len(items) != 1 || items[0].NSN == "" {
		t.Errorf("items = %+v", items)
	}
}

func TestExtractLineItemsNoMatch(t *testing.T) {
	items, strategy := ExtractLineItems("General notice text with no quantities mentioned at all.")
	if items != nil || strategy != "" {
		t.Errorf("expected no extraction, got %v via %q", items, strategy)
	}
}

func TestExtractLineItemsEmptyInput(t *testing.T) {
	if items, _ := ExtractLineItems("   "); items != nil {
		t.Errorf("blank input produced %v", items)
	}
}

func TestExtractLeadingQuantityWindow(t *testing.T) {
	// The quantity sits past the 100-character window and must not match.
	padding := make([]byte, 120)
	for i := range padding {
		padding[i] = 'x'
	}
	items, _ := ExtractLineItems(string(padding) + " 300 GAL")
	if items != nil {
		t.Errorf("out-of-window quantity matched: %+v", items)
	}
}

func TestParseQuantityCommas(t *testing.T) {
	if got := parseQuantity("1,234,567"); got != 1234567 {
		t.Errorf("parseQuantity = %v", got)
	}
	if got := parseQuantity("garbage"); got != 0 {
		t.Errorf("bad input = %v, want 0", got)
	}
}
