package main

import (
	"context"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kellerb/sam-watch/internal/config"
	"github.com/kellerb/sam-watch/internal/db"
	"github.com/kellerb/sam-watch/internal/logger"
	"github.com/kellerb/sam-watch/internal/notify"
	"github.com/kellerb/sam-watch/internal/samgov"
	"github.com/kellerb/sam-watch/internal/syncer"
)

func main() {
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
	mailer := notify.NewMailer(cfg.GraphTenantID, cfg.GraphClientID, cfg.GraphClientSecret, cfg.GraphSender, zlog)
	orchestrator := syncer.NewOrchestrator(client, store, store, mailer, store, zlog)

	result, err := orchestrator.SyncOpportunities(ctx)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Status", "Found", "New", "Skipped", "Errors"})
	t.AppendRow(table.Row{result.Status, result.TotalFound, len(result.NewOpportunities), result.Skipped, len(result.Errors)})
	t.Render()

	if len(result.NewOpportunities) > 0 {
		nt := table.NewWriter()
		nt.SetOutputMirror(os.Stdout)
		nt.AppendHeader(table.Row{"Solicitation", "Title", "PSC", "Agency", "Deadline"})
		for _, opp := range result.NewOpportunities {
			deadline := ""
			if opp.ResponseDeadline != nil {
				deadline = opp.ResponseDeadline.Format("2006-01-02")
			}
			title := opp.Title
			if len(title) > 60 {
				title = title[:57] + "..."
			}
			nt.AppendRow(table.Row{opp.SolicitationNumber, title, opp.PSCCode, opp.Agency, deadline})
		}
		nt.Render()
	}

	for _, msg := range result.Errors {
		log.Printf("Error: %s", msg)
	}
}
