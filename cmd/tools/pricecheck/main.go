package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kellerb/sam-watch/internal/config"
	"github.com/kellerb/sam-watch/internal/db"
	"github.com/kellerb/sam-watch/internal/logger"
	"github.com/kellerb/sam-watch/internal/pricing"
	"github.com/kellerb/sam-watch/internal/samgov"
)

func main() {
	nsn := flag.String("nsn", "", "national stock number, e.g. 6810-01-234-5678")
	psc := flag.String("psc", "", "product service code, e.g. 6810")
	naics := flag.String("naics", "", "NAICS code")
	lookback := flag.Int("lookback", 0, "lookback window in days (default 730)")
	flag.Parse()

	if *nsn == "" && *psc == "" && *naics == "" {
		log.Fatal("one of -nsn, -psc or -naics is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, zlog); err != nil {
		log.Fatal(err)
	}

	store := db.NewStore(pool)
	client := samgov.NewClient(cfg.SAMAPIKey, zlog)
	families, err := pricing.LoadFamilyMap("")
	if err != nil {
		log.Fatal(err)
	}
	engine := pricing.NewEngine(store, client, families, zlog)

	result := engine.LookupPricing(ctx, pricing.LookupParams{
		StockNumber:  *nsn,
		PSCCode:      *psc,
		NAICSCode:    *naics,
		LookbackDays: *lookback,
	})

	fmt.Printf("%s (confidence: %s, source: %s)\n\n", result.Summary, result.Confidence, result.DataSource)

	if result.Stats != nil {
		st := table.NewWriter()
		st.SetOutputMirror(os.Stdout)
		st.AppendHeader(table.Row{"", "Min", "Max", "Mean", "Median"})
		if result.Stats.PricedCount > 0 {
			st.AppendRow(table.Row{"Unit price",
				fmt.Sprintf("$%.2f", result.Stats.UnitPriceMin),
				fmt.Sprintf("$%.2f", result.Stats.UnitPriceMax),
				fmt.Sprintf("$%.2f", result.Stats.UnitPriceMean),
				fmt.Sprintf("$%.2f", result.Stats.UnitPriceMedian)})
		}
		st.AppendRow(table.Row{"Total value",
			fmt.Sprintf("$%.2f", result.Stats.TotalValueMin),
			fmt.Sprintf("$%.2f", result.Stats.TotalValueMax),
			fmt.Sprintf("$%.2f", result.Stats.TotalValueMean),
			fmt.Sprintf("$%.2f", result.Stats.TotalValueMedian)})
		st.Render()
		fmt.Printf("\nPrice trend: %s (%d priced of %d awards)\n\n", result.Stats.Trend, result.Stats.PricedCount, len(result.Awards))
	}

	if len(result.Awards) > 0 {
		at := table.NewWriter()
		at.SetOutputMirror(os.Stdout)
		at.AppendHeader(table.Row{"Contract", "Signed", "PSC", "Unit Price", "Total", "Awardee"})
		for _, a := range result.Awards {
			signed := ""
			if a.SignedDate != nil {
				signed = a.SignedDate.Format("2006-01-02")
			}
			unitPrice := "-"
			if a.UnitPrice != nil {
				unitPrice = fmt.Sprintf("$%.2f", *a.UnitPrice)
			}
			at.AppendRow(table.Row{a.ContractNumber, signed, a.PSCCode, unitPrice,
				fmt.Sprintf("$%.2f", a.TotalValue), a.AwardeeName})
		}
		at.Render()
	}
}
