package syncer

import (
	"strings"

	"github.com/kellerb/sam-watch/internal/models"
)

// MatchesFilters evaluates a candidate notice against the configured filter
// set. Criteria AND together and short-circuit on the first failure; an
// unset criterion is vacuously satisfied.
//
// Note the deliberate asymmetry: the exclude-keyword list is an absolute
// veto, while the set-aside allow-list and minimum award value only apply
// when the candidate actually declares that data. Upstream records are often
// incomplete and the filter favors recall over precision there.
func MatchesFilters(opp models.Opportunity, cfg models.SyncConfig) bool {
	if len(cfg.PSCCodes) > 0 && !containsString(cfg.PSCCodes, opp.PSCCode) {
		return false
	}

	if len(cfg.ExcludeKeywords) > 0 {
		haystack := strings.ToLower(opp.Title + " " + opp.Description)
		for _, keyword := range cfg.ExcludeKeywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(haystack, keyword) {
				return false
			}
		}
	}

	if len(cfg.SetAsideTypes) > 0 && opp.SetAsideType != "" &&
		!containsString(cfg.SetAsideTypes, opp.SetAsideType) {
		return false
	}

	if cfg.MinAwardValue != nil && opp.Award != nil && opp.Award.Amount < *cfg.MinAwardValue {
		return false
	}

	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
