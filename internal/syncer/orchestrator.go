package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kellerb/sam-watch/internal/models"
	"github.com/kellerb/sam-watch/internal/samgov"
)

const (
	// Cold-start ingestion window when no prior successful sync exists.
	coldStartWindow = 7 * 24 * time.Hour

	// One page per classification code per run.
	pageLimit = 100

	// Lease on the run lock; generous compared to a worst-case run so a
	// crashed holder does not block syncing for long.
	runLockTTL = 30 * time.Minute
)

// OpportunitySearcher is the slice of the SAM.gov client the orchestrator
// uses.
type OpportunitySearcher interface {
	SearchOpportunities(ctx context.Context, params samgov.OpportunitySearchParams) (*samgov.OpportunityPage, error)
	IsConfigured() bool
}

// OpportunityStore persists admitted notices. Upsert reports whether the
// record was newly created as opposed to refreshed in place.
type OpportunityStore interface {
	UpsertOpportunity(ctx context.Context, opp models.Opportunity) (created bool, err error)
}

// ConfigStore reads the singleton watch config and records run telemetry.
type ConfigStore interface {
	GetSyncConfig(ctx context.Context) (*models.SyncConfig, error)
	RecordSyncResult(ctx context.Context, at time.Time, status models.SyncStatus, errText string, newFound int) error
}

// Notifier dispatches the new-opportunity digest. Best-effort: failures are
// logged by the orchestrator and never fail the run.
type Notifier interface {
	NotifyNewOpportunities(ctx context.Context, recipient string, opps []models.Opportunity) error
}

// RunLock is a leased mutual-exclusion claim so overlapping scheduler
// invocations do not both run. Idempotent upserts keep data safe either way;
// the lock avoids duplicate work and duplicate notifications.
type RunLock interface {
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

// SyncResult characterizes one run. Success means the error list is empty;
// callers inspect TotalFound/Skipped/NewOpportunities to see partial detail.
type SyncResult struct {
	Success          bool                 `json:"success"`
	TotalFound       int                  `json:"total_found"`
	Skipped          int                  `json:"skipped"`
	NewOpportunities []models.Opportunity `json:"new_opportunities"`
	Errors           []string             `json:"errors,omitempty"`
	Status           models.SyncStatus    `json:"status"`
}

type Orchestrator struct {
	Client   OpportunitySearcher
	Opps     OpportunityStore
	Config   ConfigStore
	Notifier Notifier
	Lock     RunLock

	log *zap.SugaredLogger
	now func() time.Time
}

func NewOrchestrator(client OpportunitySearcher, opps OpportunityStore, config ConfigStore, notifier Notifier, lock RunLock, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		Client:   client,
		Opps:     opps,
		Config:   config,
		Notifier: notifier,
		Lock:     lock,
		log:      log,
		now:      time.Now,
	}
}

func failedResult(msg string) *SyncResult {
	return &SyncResult{
		Success: false,
		Errors:  []string{msg},
		Status:  models.SyncStatusFailed,
	}
}

// SyncOpportunities runs one sync: validate config, fetch a page per watched
// classification code, filter, persist, notify, and record telemetry. A
// fetch failure on one code never aborts the others; the run is then marked
// partial. The returned result is always well-formed.
func (o *Orchestrator) SyncOpportunities(ctx context.Context) (*SyncResult, error) {
	cfg, err := o.Config.GetSyncConfig(ctx)
	if err != nil {
		return failedResult(fmt.Sprintf("loading sync config: %v", err)), nil
	}
	if cfg == nil {
		return failedResult("no sync configuration exists"), nil
	}
	if !cfg.Enabled {
		return failedResult("sync is disabled"), nil
	}
	if !o.Client.IsConfigured() {
		return failedResult("SAM.gov API key is not configured"), nil
	}

	owner := fmt.Sprintf("sync-%d", o.now().UnixNano())
	acquired, err := o.Lock.Acquire(ctx, owner, runLockTTL)
	if err != nil {
		return failedResult(fmt.Sprintf("acquiring run lock: %v", err)), nil
	}
	if !acquired {
		return failedResult("a sync run is already in progress"), nil
	}
	defer func() {
		if err := o.Lock.Release(ctx, owner); err != nil {
			o.log.Warnw("releasing run lock failed", "error", err)
		}
	}()

	now := o.now()
	from := now.Add(-coldStartWindow)
	if cfg.LastSyncAt != nil {
		from = *cfg.LastSyncAt
	}

	result := &SyncResult{}
	keyword := strings.Join(cfg.IncludeKeywords, " ")

	for _, code := range cfg.PSCCodes {
		page, err := o.Client.SearchOpportunities(ctx, samgov.OpportunitySearchParams{
			PostedFrom:   from,
			PostedTo:     now,
			PSCCode:      code,
			TitleKeyword: keyword,
			Limit:        pageLimit,
		})
		if err != nil {
			o.log.Errorw("opportunity fetch failed", "psc_code", code, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("PSC %s: %v", code, err))
			continue
		}

		result.TotalFound += page.TotalRecords
		for _, opp := range page.Opportunities {
			if !MatchesFilters(opp, *cfg) {
				result.Skipped++
				continue
			}
			created, err := o.Opps.UpsertOpportunity(ctx, opp)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("persisting %s: %v", opp.SolicitationNumber, err))
				continue
			}
			if created {
				result.NewOpportunities = append(result.NewOpportunities, opp)
			}
		}
	}

	if len(result.NewOpportunities) > 0 && cfg.NotifyEmail != "" {
		if err := o.Notifier.NotifyNewOpportunities(ctx, cfg.NotifyEmail, result.NewOpportunities); err != nil {
			o.log.Warnw("notification dispatch failed", "recipient", cfg.NotifyEmail, "error", err)
		}
	}

	result.Success = len(result.Errors) == 0
	result.Status = models.SyncStatusSuccess
	if !result.Success {
		result.Status = models.SyncStatusPartial
	}

	errText := strings.Join(result.Errors, "; ")
	if err := o.Config.RecordSyncResult(ctx, now, result.Status, errText, len(result.NewOpportunities)); err != nil {
		o.log.Errorw("recording sync telemetry failed", "error", err)
	}

	o.log.Infow("sync run finished",
		"status", result.Status,
		"total_found", result.TotalFound,
		"new", len(result.NewOpportunities),
		"skipped", result.Skipped,
		"errors", len(result.Errors))

	return result, nil
}
