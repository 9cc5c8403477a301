package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kellerb/sam-watch/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx, "")
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	cfg, err := store.GetSyncConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if cfg == nil {
		log.Fatal("No sync configuration exists yet")
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRow(table.Row{"Enabled", cfg.Enabled})
	t.AppendRow(table.Row{"PSC codes", strings.Join(cfg.PSCCodes, ", ")})
	t.AppendRow(table.Row{"Include keywords", strings.Join(cfg.IncludeKeywords, ", ")})
	t.AppendRow(table.Row{"Exclude keywords", strings.Join(cfg.ExcludeKeywords, ", ")})
	t.AppendRow(table.Row{"Set-aside types", strings.Join(cfg.SetAsideTypes, ", ")})
	t.AppendRow(table.Row{"Interval (hours)", cfg.SyncIntervalHours})
	t.AppendRow(table.Row{"Notify", cfg.NotifyEmail})
	t.Render()

	rt := table.NewWriter()
	rt.SetOutputMirror(os.Stdout)
	rt.AppendHeader(table.Row{"Last Sync", "Status", "New Found (total)", "Error"})
	lastSync := "never"
	if cfg.LastSyncAt != nil {
		lastSync = cfg.LastSyncAt.Format(time.RFC3339)
	}
	rt.AppendRow(table.Row{lastSync, cfg.LastSyncStatus, cfg.TotalFound, cfg.LastSyncError})
	rt.Render()
}
