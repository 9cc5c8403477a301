package syncer

import (
	"testing"

	"github.com/kellerb/sam-watch/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestMatchesFilters(t *testing.T) {
	baseCfg := models.SyncConfig{
		PSCCodes:        []string{"6810", "6840"},
		ExcludeKeywords: []string{"radioactive", "small business set-aside only"},
		SetAsideTypes:   []string{"SBA", "WOSB"},
		MinAwardValue:   floatPtr(10000),
	}

	tests := []struct {
		name string
		opp  models.Opportunity
		cfg  models.SyncConfig
		want bool
	}{
		{
			name: "all criteria satisfied",
			opp: models.Opportunity{
				Title:        "Acetone, Technical Grade",
				Description:  "55 gallon drums",
				PSCCode:      "6810",
				SetAsideType: "SBA",
				Award:        &models.Award{Amount: 50000},
			},
			cfg:  baseCfg,
			want: true,
		},
		{
			name: "psc code not watched",
			opp:  models.Opportunity{Title: "Acetone", PSCCode: "8040"},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "psc match is case insensitive with padding",
			opp:  models.Opportunity{Title: "Solvent", PSCCode: "6840"},
			cfg:  models.SyncConfig{PSCCodes: []string{" 6840 "}},
			want: true,
		},
		{
			name: "exclude keyword in title vetoes",
			opp: models.Opportunity{
				Title:   "RADIOACTIVE source disposal",
				PSCCode: "6810",
			},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "exclude keyword in description vetoes",
			opp: models.Opportunity{
				Title:       "Isotope kit",
				Description: "Includes a sealed Radioactive calibration source",
				PSCCode:     "6810",
			},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "exclude veto beats otherwise perfect match",
			opp: models.Opportunity{
				Title:        "Acetone radioactive tracer",
				PSCCode:      "6810",
				SetAsideType: "SBA",
				Award:        &models.Award{Amount: 999999},
			},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "missing set-aside passes the set-aside filter",
			opp:  models.Opportunity{Title: "Acetone", PSCCode: "6810"},
			cfg:  baseCfg,
			want: true,
		},
		{
			name: "declared foreign set-aside fails",
			opp:  models.Opportunity{Title: "Acetone", PSCCode: "6810", SetAsideType: "8A"},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "missing award passes the value filter",
			opp:  models.Opportunity{Title: "Acetone", PSCCode: "6810"},
			cfg:  baseCfg,
			want: true,
		},
		{
			name: "award below the floor fails",
			opp: models.Opportunity{
				Title:   "Acetone",
				PSCCode: "6810",
				Award:   &models.Award{Amount: 500},
			},
			cfg:  baseCfg,
			want: false,
		},
		{
			name: "empty config admits everything",
			opp:  models.Opportunity{Title: "Anything at all"},
			cfg:  models.SyncConfig{},
			want: true,
		},
		{
			name: "blank exclude keyword is ignored",
			opp:  models.Opportunity{Title: "Acetone", PSCCode: "6810"},
			cfg: models.SyncConfig{
				PSCCodes:        []string{"6810"},
				ExcludeKeywords: []string{"", "   "},
			},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesFilters(tc.opp, tc.cfg); got != tc.want {
				t.Errorf("MatchesFilters() = %v, want %v", got, tc.want)
			}
		})
	}
}
