package pricing

import "strings"

const maxLeadingTokens = 10

// ExtractKeywords builds the bag of words stored with a cached award:
// every domain keyword present in the description plus its first ten
// tokens, lowercased and deduplicated. Stored for future free-text
// narrowing; not yet consulted by the matching logic.
func ExtractKeywords(description string, domainKeywords []string) []string {
	text := strings.ToLower(description)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(word string) {
		word = strings.Trim(word, ".,;:()[]\"'")
		if word == "" {
			return
		}
		if _, ok := seen[word]; ok {
			return
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}

	for _, keyword := range domainKeywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			add(strings.ToLower(keyword))
		}
	}

	tokens := strings.Fields(text)
	if len(tokens) > maxLeadingTokens {
		tokens = tokens[:maxLeadingTokens]
	}
	for _, token := range tokens {
		add(token)
	}

	return out
}
