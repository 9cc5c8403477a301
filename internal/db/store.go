package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kellerb/sam-watch/internal/models"
	"github.com/kellerb/sam-watch/internal/pricing"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Query       string
	PSCCode     string
	Agency      string
	Status      string // "new", "reviewed", "imported", "dismissed", or "all" (default "all")
	PostedAfter *time.Time
	ActiveOnly  bool // response deadline still in the future
	SortBy      string
	Limit       int
	Offset      int
}

type ListResult struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

const opportunityCols = `id, notice_id, solicitation_number, title, description,
	posted_date, response_deadline, psc_code, set_aside_type, agency, office,
	contact_name, contact_email, contact_phone, ui_link, attachments,
	award_amount, awardee, award_date, review_status, dismiss_reason, raw,
	created_at, updated_at`

func scanOpportunity(scan func(dest ...interface{}) error) (models.Opportunity, error) {
	var o models.Opportunity
	var noticeID, pscCode, setAside, agency, office *string
	var contactName, contactEmail, contactPhone, uiLink, dismissReason *string
	var awardAmount *float64
	var awardee *string
	var awardDate *time.Time
	var attachmentsRaw, rawRaw []byte

	err := scan(
		&o.ID, &noticeID, &o.SolicitationNumber, &o.Title, &o.Description,
		&o.PostedDate, &o.ResponseDeadline, &pscCode, &setAside, &agency, &office,
		&contactName, &contactEmail, &contactPhone, &uiLink, &attachmentsRaw,
		&awardAmount, &awardee, &awardDate, &o.ReviewStatus, &dismissReason, &rawRaw,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if noticeID != nil {
		o.NoticeID = *noticeID
	}
	if pscCode != nil {
		o.PSCCode = *pscCode
	}
	if setAside != nil {
		o.SetAsideType = *setAside
	}
	if agency != nil {
		o.Agency = *agency
	}
	if office != nil {
		o.Office = *office
	}
	if contactName != nil {
		o.Contact.Name = *contactName
	}
	if contactEmail != nil {
		o.Contact.Email = *contactEmail
	}
	if contactPhone != nil {
		o.Contact.Phone = *contactPhone
	}
	if uiLink != nil {
		o.UILink = *uiLink
	}
	if dismissReason != nil {
		o.DismissReason = *dismissReason
	}
	if len(attachmentsRaw) > 0 {
		_ = json.Unmarshal(attachmentsRaw, &o.Attachments)
	}
	if len(rawRaw) > 0 {
		_ = json.Unmarshal(rawRaw, &o.Raw)
	}
	if awardAmount != nil || awardee != nil || awardDate != nil {
		o.Award = &models.Award{Date: awardDate}
		if awardAmount != nil {
			o.Award.Amount = *awardAmount
		}
		if awardee != nil {
			o.Award.Awardee = *awardee
		}
	}

	return o, nil
}

func buildOpportunityWhere(params ListParams) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if params.PSCCode != "" {
		where += fmt.Sprintf(" AND psc_code = $%d", argIdx)
		args = append(args, params.PSCCode)
		argIdx++
	}
	if params.Agency != "" {
		where += fmt.Sprintf(" AND agency ILIKE '%%' || $%d || '%%'", argIdx)
		args = append(args, params.Agency)
		argIdx++
	}
	if params.Status != "" && params.Status != "all" {
		where += fmt.Sprintf(" AND review_status = $%d", argIdx)
		args = append(args, params.Status)
		argIdx++
	}
	if params.PostedAfter != nil {
		where += fmt.Sprintf(" AND posted_date >= $%d", argIdx)
		args = append(args, *params.PostedAfter)
		argIdx++
	}
	if params.ActiveOnly {
		where += " AND (response_deadline IS NULL OR response_deadline >= NOW())"
	}

	return where, args
}

func (s *Store) ListOpportunities(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	where, args := buildOpportunityWhere(params)

	var total int
	countSQL := "SELECT COUNT(*) FROM opportunities " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM opportunities %s", opportunityCols, where)
	switch params.SortBy {
	case "deadline":
		selectSQL += " ORDER BY response_deadline ASC NULLS LAST"
	case "oldest":
		selectSQL += " ORDER BY posted_date ASC NULLS LAST, created_at ASC"
	default: // newest
		selectSQL += " ORDER BY posted_date DESC NULLS LAST, created_at DESC"
	}

	argIdx := len(args) + 1
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	if opps == nil {
		opps = []models.Opportunity{}
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM opportunities
		WHERE id = $1
	`, opportunityCols)
	row := s.pool.QueryRow(ctx, sql, id)

	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}

	return &o, nil
}

// UpsertOpportunity inserts by solicitation number or refreshes the
// descriptive fields of an existing row. Review status and dismiss reason
// are never touched on conflict, so a re-sync cannot undo a staff decision.
// Created reports whether the row is new rather than refreshed.
func (s *Store) UpsertOpportunity(ctx context.Context, opp models.Opportunity) (bool, error) {
	var attachmentsRaw, rawRaw []byte
	if len(opp.Attachments) > 0 {
		attachmentsRaw, _ = json.Marshal(opp.Attachments)
	}
	if len(opp.Raw) > 0 {
		rawRaw, _ = json.Marshal(opp.Raw)
	}

	var awardAmount *float64
	var awardee *string
	var awardDate *time.Time
	if opp.Award != nil {
		awardAmount = &opp.Award.Amount
		awardee = &opp.Award.Awardee
		awardDate = opp.Award.Date
	}

	var created bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (
			notice_id, solicitation_number, title, description, posted_date,
			response_deadline, psc_code, set_aside_type, agency, office,
			contact_name, contact_email, contact_phone, ui_link, attachments,
			award_amount, awardee, award_date, raw
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19
		)
		ON CONFLICT (solicitation_number) DO UPDATE SET
			notice_id = EXCLUDED.notice_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			posted_date = EXCLUDED.posted_date,
			response_deadline = EXCLUDED.response_deadline,
			psc_code = EXCLUDED.psc_code,
			set_aside_type = EXCLUDED.set_aside_type,
			agency = EXCLUDED.agency,
			office = EXCLUDED.office,
			contact_name = EXCLUDED.contact_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			ui_link = EXCLUDED.ui_link,
			attachments = EXCLUDED.attachments,
			award_amount = EXCLUDED.award_amount,
			awardee = EXCLUDED.awardee,
			award_date = EXCLUDED.award_date,
			raw = EXCLUDED.raw,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`,
		opp.NoticeID, opp.SolicitationNumber, opp.Title, opp.Description, opp.PostedDate,
		opp.ResponseDeadline, opp.PSCCode, opp.SetAsideType, opp.Agency, opp.Office,
		opp.Contact.Name, opp.Contact.Email, opp.Contact.Phone, opp.UILink, attachmentsRaw,
		awardAmount, awardee, awardDate, rawRaw,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert failed for %s: %w", opp.SolicitationNumber, err)
	}

	return created, nil
}

func (s *Store) UpdateReviewStatus(ctx context.Context, id string, status models.ReviewStatus, dismissReason string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid review status %q", status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities
		SET review_status = $2,
		    dismiss_reason = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $1
	`, id, status, dismissReason)
	if err != nil {
		return fmt.Errorf("status update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %s not found", id)
	}
	return nil
}

func (s *Store) GetSyncConfig(ctx context.Context) (*models.SyncConfig, error) {
	var cfg models.SyncConfig
	var status, errText *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, psc_codes, include_keywords, exclude_keywords, agencies,
		       set_aside_types, min_award_value, enabled, sync_interval_hours,
		       notify_email, last_sync_at, last_sync_status, last_sync_error,
		       total_found, created_at, updated_at
		FROM sync_config
		WHERE singleton = TRUE
	`).Scan(
		&cfg.ID, &cfg.PSCCodes, &cfg.IncludeKeywords, &cfg.ExcludeKeywords, &cfg.Agencies,
		&cfg.SetAsideTypes, &cfg.MinAwardValue, &cfg.Enabled, &cfg.SyncIntervalHours,
		&cfg.NotifyEmail, &cfg.LastSyncAt, &status, &errText,
		&cfg.TotalFound, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading sync config: %w", err)
	}

	if status != nil {
		cfg.LastSyncStatus = models.SyncStatus(*status)
	}
	if errText != nil {
		cfg.LastSyncError = *errText
	}
	return &cfg, nil
}

// SaveSyncConfig upserts the singleton configuration row. Telemetry columns
// are left alone; only the watch settings change.
func (s *Store) SaveSyncConfig(ctx context.Context, cfg models.SyncConfig) (*models.SyncConfig, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_config (
			singleton, psc_codes, include_keywords, exclude_keywords, agencies,
			set_aside_types, min_award_value, enabled, sync_interval_hours, notify_email
		) VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (singleton) DO UPDATE SET
			psc_codes = EXCLUDED.psc_codes,
			include_keywords = EXCLUDED.include_keywords,
			exclude_keywords = EXCLUDED.exclude_keywords,
			agencies = EXCLUDED.agencies,
			set_aside_types = EXCLUDED.set_aside_types,
			min_award_value = EXCLUDED.min_award_value,
			enabled = EXCLUDED.enabled,
			sync_interval_hours = EXCLUDED.sync_interval_hours,
			notify_email = EXCLUDED.notify_email,
			updated_at = NOW()
	`,
		sanitizeStringSlice(cfg.PSCCodes), sanitizeStringSlice(cfg.IncludeKeywords),
		sanitizeStringSlice(cfg.ExcludeKeywords), sanitizeStringSlice(cfg.Agencies),
		sanitizeStringSlice(cfg.SetAsideTypes), cfg.MinAwardValue,
		cfg.Enabled, cfg.SyncIntervalHours, cfg.NotifyEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("saving sync config: %w", err)
	}

	return s.GetSyncConfig(ctx)
}

func (s *Store) RecordSyncResult(ctx context.Context, at time.Time, status models.SyncStatus, errText string, newFound int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_config
		SET last_sync_at = $1,
		    last_sync_status = $2,
		    last_sync_error = NULLIF($3, ''),
		    total_found = total_found + $4,
		    updated_at = NOW()
		WHERE singleton = TRUE
	`, at, status, errText, newFound)
	if err != nil {
		return fmt.Errorf("recording sync result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no sync config row to record against")
	}
	return nil
}

const awardCols = `id, contract_number, psc_code, naics_code, keywords,
	signed_date, total_value, obligated_amount, quantity, unit_price,
	awardee_name, awardee_cage, awardee_uei, agency, description, raw, created_at`

func scanAward(scan func(dest ...interface{}) error) (models.ContractAward, error) {
	var a models.ContractAward
	var pscCode, naicsCode, awardeeName, awardeeCage, awardeeUEI, agency, description *string
	var rawRaw []byte

	err := scan(
		&a.ID, &a.ContractNumber, &pscCode, &naicsCode, &a.Keywords,
		&a.SignedDate, &a.TotalValue, &a.ObligatedAmount, &a.Quantity, &a.UnitPrice,
		&awardeeName, &awardeeCage, &awardeeUEI, &agency, &description, &rawRaw, &a.CreatedAt,
	)
	if err != nil {
		return a, err
	}

	if pscCode != nil {
		a.PSCCode = *pscCode
	}
	if naicsCode != nil {
		a.NAICSCode = *naicsCode
	}
	if awardeeName != nil {
		a.AwardeeName = *awardeeName
	}
	if awardeeCage != nil {
		a.AwardeeCage = *awardeeCage
	}
	if awardeeUEI != nil {
		a.AwardeeUEI = *awardeeUEI
	}
	if agency != nil {
		a.Agency = *agency
	}
	if description != nil {
		a.Description = *description
	}
	if len(rawRaw) > 0 {
		_ = json.Unmarshal(rawRaw, &a.Raw)
	}

	return a, nil
}

func (s *Store) QueryAwards(ctx context.Context, q pricing.AwardQuery) ([]models.ContractAward, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if codes := sanitizeStringSlice(q.PSCCodes); len(codes) > 0 {
		where += fmt.Sprintf(" AND psc_code = ANY($%d)", argIdx)
		args = append(args, codes)
		argIdx++
	}
	if q.NAICSCode != "" {
		where += fmt.Sprintf(" AND naics_code = $%d", argIdx)
		args = append(args, q.NAICSCode)
		argIdx++
	}
	if !q.SignedAfter.IsZero() {
		where += fmt.Sprintf(" AND signed_date >= $%d", argIdx)
		args = append(args, q.SignedAfter)
		argIdx++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf(`
		SELECT %s
		FROM award_cache
		%s
		ORDER BY signed_date DESC NULLS LAST
		LIMIT $%d
	`, awardCols, where, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("award query failed: %w", err)
	}
	defer rows.Close()

	var awards []models.ContractAward
	for rows.Next() {
		a, err := scanAward(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("award scan failed: %w", err)
		}
		awards = append(awards, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("award rows iteration failed: %w", err)
	}

	return awards, nil
}

// InsertAwards is insert-or-ignore by contract number. Returns how many rows
// were actually new.
func (s *Store) InsertAwards(ctx context.Context, awards []models.ContractAward) (int, error) {
	inserted := 0
	for _, a := range awards {
		if a.ContractNumber == "" {
			continue
		}
		var rawRaw []byte
		if len(a.Raw) > 0 {
			rawRaw, _ = json.Marshal(a.Raw)
		}

		tag, err := s.pool.Exec(ctx, `
			INSERT INTO award_cache (
				contract_number, psc_code, naics_code, keywords, signed_date,
				total_value, obligated_amount, quantity, unit_price,
				awardee_name, awardee_cage, awardee_uei, agency, description, raw
			) VALUES (
				$1, $2, $3, $4, $5,
				$6, $7, $8, $9,
				$10, $11, $12, $13, $14, $15
			)
			ON CONFLICT (contract_number) DO NOTHING
		`,
			a.ContractNumber, a.PSCCode, a.NAICSCode, a.Keywords, a.SignedDate,
			a.TotalValue, a.ObligatedAmount, a.Quantity, a.UnitPrice,
			a.AwardeeName, a.AwardeeCage, a.AwardeeUEI, a.Agency, a.Description, rawRaw,
		)
		if err != nil {
			return inserted, fmt.Errorf("caching award %s: %w", a.ContractNumber, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Acquire claims the run lock. The claim is leased: an expired holder's row
// is taken over, a live one blocks the caller.
func (s *Store) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	var holder string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sync_lock (id, owner, expires_at)
		VALUES (1, $1, NOW() + make_interval(secs => $2))
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at
		WHERE sync_lock.expires_at < NOW()
		RETURNING owner
	`, owner, ttl.Seconds()).Scan(&holder)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring run lock: %w", err)
	}
	return holder == owner, nil
}

func (s *Store) Release(ctx context.Context, owner string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sync_lock WHERE id = 1 AND owner = $1", owner)
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	return nil
}

func sanitizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return values
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			clean = append(clean, trimmed)
		}
	}

	return clean
}
