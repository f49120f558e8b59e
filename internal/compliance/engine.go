package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pinksync/internal/ledger"
	"pinksync/internal/platform/keyed"
	"pinksync/internal/registry"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Flags an app must declare before an audit can grant the level.
const (
	FlagSignLanguageSupport = "sign_language_support"
	FlagRealtimeCaptions    = "realtime_captions"
)

// Thresholds an audit checks for one target level. Bronze has none; every
// registered app holds at least bronze.
type Thresholds struct {
	MinMonthlyEvents int64
	RequiredFlags    []string
}

var levelThresholds = map[domain.Level]Thresholds{
	domain.LevelSilver:   {MinMonthlyEvents: 100},
	domain.LevelGold:     {MinMonthlyEvents: 500, RequiredFlags: []string{FlagSignLanguageSupport}},
	domain.LevelPlatinum: {MinMonthlyEvents: 2000, RequiredFlags: []string{FlagSignLanguageSupport, FlagRealtimeCaptions}},
}

// Audit cadence per held level. Higher levels are re-audited more often.
var auditCadence = map[domain.Level]time.Duration{
	domain.LevelBronze:   365 * 24 * time.Hour,
	domain.LevelSilver:   182 * 24 * time.Hour,
	domain.LevelGold:     90 * 24 * time.Hour,
	domain.LevelPlatinum: 90 * 24 * time.Hour,
}

const monthlyWindow = 30 * 24 * time.Hour

// Registry is the slice of the capability registry the engine reads.
type Registry interface {
	Get(ctx context.Context, appID domain.AppID) (*registry.Declaration, error)
}

// Ledger is the slice of the audit ledger the engine writes through.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
}

// Engine owns compliance state transitions. Promotion only happens through
// RequestAudit and only one level at a time; critical violations demote
// immediately. All mutations for one app are serialized through a keyed mutex.
type Engine struct {
	store    Store
	registry Registry
	ledger   Ledger
	logger   *slog.Logger
	locks    *keyed.Mutex

	warningLimit    int
	warningWindow   time.Duration
	certificateBase string
	now             func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCertificateBase sets the base URL for gold/platinum certificates.
func WithCertificateBase(base string) Option {
	return func(e *Engine) { e.certificateBase = base }
}

func NewEngine(store Store, reg Registry, led Ledger, logger *slog.Logger, warningLimit int, warningWindow time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		registry:        reg,
		ledger:          led,
		logger:          logger,
		locks:           keyed.NewMutex(),
		warningLimit:    warningLimit,
		warningWindow:   warningWindow,
		certificateBase: "https://certificates.pinksync.io",
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger payloads. Fixed field order keeps chain hashes reproducible.
type auditRecord struct {
	AppID   string   `json:"app_id"`
	From    string   `json:"from_level"`
	To      string   `json:"to_level"`
	Granted bool     `json:"granted"`
	Reasons []string `json:"reasons,omitempty"`
}

type violationRecord struct {
	AppID       string `json:"app_id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
}

type levelChangeRecord struct {
	AppID string `json:"app_id"`
	From  string `json:"from_level"`
	To    string `json:"to_level"`
	Cause string `json:"cause"`
}

// NoteEvent counts an accepted event toward the app's volume thresholds and
// flags intents the app never declared as warning violations.
func (e *Engine) NoteEvent(ctx context.Context, appID domain.AppID, intent domain.Intent) error {
	e.locks.Lock(appID.String())
	defer e.locks.Unlock(appID.String())

	rec, err := e.loadOrInit(ctx, appID)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	if now.Sub(rec.MonthlyStart) > monthlyWindow {
		rec.MonthlyStart = now
		rec.MonthlyEvents = 0
	}
	rec.EventsCount++
	rec.MonthlyEvents++

	decl, err := e.registry.Get(ctx, appID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}
	if decl != nil && !decl.Supports(intent) {
		v := Violation{
			Type:        "undeclared_intent",
			Severity:    SeverityWarning,
			Timestamp:   now,
			Description: fmt.Sprintf("event intent %s is not in the declared capability set", intent),
		}
		if err := e.applyViolation(ctx, rec, v); err != nil {
			return err
		}
	}

	if err := e.store.Put(ctx, *rec); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "store compliance record", err)
	}
	return nil
}

// AuditResult reports what an audit decided. A refused promotion is a normal
// outcome, not an error.
type AuditResult struct {
	AppID   domain.AppID `json:"app_id"`
	Granted bool         `json:"granted"`
	From    domain.Level `json:"from_level"`
	To      domain.Level `json:"to_level"`
	Reasons []string     `json:"reasons,omitempty"`
	NextDue time.Time    `json:"next_audit_due"`
}

// RequestAudit evaluates the app against the next level up. Promotion is
// monotonic: one level per audit, no skipping. Every audit is ledgered whether
// or not it grants the promotion.
func (e *Engine) RequestAudit(ctx context.Context, appID domain.AppID) (*AuditResult, error) {
	e.locks.Lock(appID.String())
	defer e.locks.Unlock(appID.String())

	rec, err := e.loadOrInit(ctx, appID)
	if err != nil {
		return nil, err
	}

	target, ok := rec.CurrentLevel.Next()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeConflict, "app %s already holds the highest level", appID)
	}

	decl, err := e.registry.Get(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}
	if decl == nil || decl.Status != registry.StatusActive {
		return nil, dErrors.Newf(dErrors.CodeUnregisteredApp, "app %s has no active capability declaration", appID)
	}

	now := e.now().UTC()
	from := rec.CurrentLevel
	reasons := e.unmetRequirements(rec, decl, target, now)
	granted := len(reasons) == 0

	if granted {
		rec.CurrentLevel = target
		if _, err := e.ledger.Append(ctx, ledger.TypeLevelChanged, levelChangeRecord{
			AppID: appID.String(),
			From:  from.String(),
			To:    target.String(),
			Cause: "audit_promotion",
		}); err != nil {
			return nil, err
		}
	}
	rec.LastAudit = &now
	due := now.Add(auditCadence[rec.CurrentLevel])
	rec.NextAuditDue = &due

	if _, err := e.ledger.Append(ctx, ledger.TypeComplianceAudit, auditRecord{
		AppID:   appID.String(),
		From:    from.String(),
		To:      target.String(),
		Granted: granted,
		Reasons: reasons,
	}); err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, *rec); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store compliance record", err)
	}

	e.logger.InfoContext(ctx, "compliance audit completed",
		"app_id", appID.String(),
		"target", target.String(),
		"granted", granted,
	)
	return &AuditResult{
		AppID:   appID,
		Granted: granted,
		From:    from,
		To:      target,
		Reasons: reasons,
		NextDue: due,
	}, nil
}

// unmetRequirements lists why target cannot be granted; empty means pass.
func (e *Engine) unmetRequirements(rec *Record, decl *registry.Declaration, target domain.Level, now time.Time) []string {
	var reasons []string
	th := levelThresholds[target]
	if rec.MonthlyEvents < th.MinMonthlyEvents {
		reasons = append(reasons, fmt.Sprintf("monthly event volume %d below required %d", rec.MonthlyEvents, th.MinMonthlyEvents))
	}
	if n := rec.criticalsSince(now.Add(-auditCadence[target])); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical violations in audit window", n))
	}
	for _, flag := range th.RequiredFlags {
		if !decl.HasFlag(flag) {
			reasons = append(reasons, fmt.Sprintf("required flag %s not declared", flag))
		}
	}
	return reasons
}

// RecordViolation registers a violation and applies its consequences: critical
// demotes immediately, warnings escalate to critical once the rolling-window
// count passes the limit.
func (e *Engine) RecordViolation(ctx context.Context, appID domain.AppID, v Violation) error {
	e.locks.Lock(appID.String())
	defer e.locks.Unlock(appID.String())

	rec, err := e.loadOrInit(ctx, appID)
	if err != nil {
		return err
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = e.now().UTC()
	}
	if err := e.applyViolation(ctx, rec, v); err != nil {
		return err
	}
	if err := e.store.Put(ctx, *rec); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "store compliance record", err)
	}
	return nil
}

// applyViolation mutates rec in place. Caller holds the app lock and persists.
func (e *Engine) applyViolation(ctx context.Context, rec *Record, v Violation) error {
	rec.Violations = append(rec.Violations, v)
	if _, err := e.ledger.Append(ctx, ledger.TypeViolation, violationRecord{
		AppID:       rec.AppID.String(),
		Type:        v.Type,
		Severity:    string(v.Severity),
		Description: v.Description,
	}); err != nil {
		return err
	}

	switch v.Severity {
	case SeverityCritical:
		return e.demote(ctx, rec, "critical_violation")
	case SeverityWarning:
		cutoff := v.Timestamp.Add(-e.warningWindow)
		if rec.warningsSince(cutoff) >= e.warningLimit {
			escalated := Violation{
				Type:        "warning_threshold_exceeded",
				Severity:    SeverityCritical,
				Timestamp:   v.Timestamp,
				Description: fmt.Sprintf("%d warnings within %s", e.warningLimit, e.warningWindow),
			}
			return e.applyViolation(ctx, rec, escalated)
		}
	}
	return nil
}

// demote recomputes the highest level whose volume and flag thresholds the app
// still satisfies, capped at the current level. Promotion never happens here;
// that requires an audit.
func (e *Engine) demote(ctx context.Context, rec *Record, cause string) error {
	decl, err := e.registry.Get(ctx, rec.AppID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "load declaration", err)
	}

	recomputed := domain.LevelBronze
	for _, lvl := range domain.Levels() {
		if lvl == domain.LevelBronze {
			continue
		}
		if lvl.Rank() > rec.CurrentLevel.Rank() {
			break
		}
		th := levelThresholds[lvl]
		if rec.MonthlyEvents < th.MinMonthlyEvents {
			break
		}
		flagsOK := decl != nil
		for _, flag := range th.RequiredFlags {
			if decl == nil || !decl.HasFlag(flag) {
				flagsOK = false
			}
		}
		if !flagsOK {
			break
		}
		recomputed = lvl
	}

	if recomputed == rec.CurrentLevel {
		return nil
	}
	from := rec.CurrentLevel
	rec.CurrentLevel = recomputed
	if _, err := e.ledger.Append(ctx, ledger.TypeLevelChanged, levelChangeRecord{
		AppID: rec.AppID.String(),
		From:  from.String(),
		To:    recomputed.String(),
		Cause: cause,
	}); err != nil {
		return err
	}
	e.logger.WarnContext(ctx, "compliance level demoted",
		"app_id", rec.AppID.String(),
		"from", from.String(),
		"to", recomputed.String(),
		"cause", cause,
	)
	return nil
}

// ChainReader is the slice of the ledger the replay reads.
type ChainReader interface {
	Head() uint64
	Range(ctx context.Context, from, to uint64) ([]ledger.Entry, error)
}

// Replay rebuilds compliance records from the chain. Records are projections;
// a restart starts from whatever the store holds, so an empty store plus a
// full replay reproduces event counts, violations, and levels. Called once at
// startup before the intake surface opens.
func (e *Engine) Replay(ctx context.Context, chain ChainReader) error {
	head := chain.Head()
	if head == 0 {
		return nil
	}
	entries, err := chain.Range(ctx, 1, head)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "replay ledger", err)
	}

	recs := make(map[domain.AppID]*Record)
	load := func(appID domain.AppID, at time.Time) *Record {
		if rec, ok := recs[appID]; ok {
			return rec
		}
		rec := &Record{AppID: appID, CurrentLevel: domain.LevelBronze, MonthlyStart: at}
		recs[appID] = rec
		return rec
	}

	for _, entry := range entries {
		switch entry.Type {
		case ledger.TypeEventAccepted:
			var p struct {
				AppID string `json:"app_id"`
			}
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode accepted event payload", err)
			}
			rec := load(domain.AppID(p.AppID), entry.RecordedAt)
			if entry.RecordedAt.Sub(rec.MonthlyStart) > monthlyWindow {
				rec.MonthlyStart = entry.RecordedAt
				rec.MonthlyEvents = 0
			}
			rec.EventsCount++
			rec.MonthlyEvents++

		case ledger.TypeViolation:
			var p violationRecord
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode violation payload", err)
			}
			rec := load(domain.AppID(p.AppID), entry.RecordedAt)
			rec.Violations = append(rec.Violations, Violation{
				Type:        p.Type,
				Severity:    Severity(p.Severity),
				Timestamp:   entry.RecordedAt,
				Description: p.Description,
			})

		case ledger.TypeLevelChanged:
			var p levelChangeRecord
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode level change payload", err)
			}
			lvl, lerr := domain.ParseLevel(p.To)
			if lerr != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode level change payload", lerr)
			}
			load(domain.AppID(p.AppID), entry.RecordedAt).CurrentLevel = lvl

		case ledger.TypeComplianceAudit:
			var p auditRecord
			if err := json.Unmarshal(entry.Payload, &p); err != nil {
				return dErrors.Wrap(dErrors.CodeInternal, "decode audit payload", err)
			}
			// A granting audit's level change precedes it in the chain, so
			// the current level here already reflects the audit's outcome.
			rec := load(domain.AppID(p.AppID), entry.RecordedAt)
			at := entry.RecordedAt
			rec.LastAudit = &at
			due := at.Add(auditCadence[rec.CurrentLevel])
			rec.NextAuditDue = &due
		}
	}

	for _, rec := range recs {
		if err := e.store.Put(ctx, *rec); err != nil {
			return dErrors.Wrap(dErrors.CodeInternal, "store compliance record", err)
		}
	}
	e.logger.InfoContext(ctx, "compliance records rebuilt", "apps", len(recs), "head", head)
	return nil
}

// Report returns the external compliance view for an app.
func (e *Engine) Report(ctx context.Context, appID domain.AppID) (*Report, error) {
	rec, err := e.store.Get(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load compliance record", err)
	}
	if rec == nil {
		decl, derr := e.registry.Get(ctx, appID)
		if derr != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "load declaration", derr)
		}
		if decl == nil {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "app %s has no compliance record", appID)
		}
		rec = &Record{AppID: appID, CurrentLevel: domain.LevelBronze, MonthlyStart: e.now().UTC()}
	}

	report := &Report{
		AppID:        rec.AppID,
		Level:        rec.CurrentLevel,
		Status:       "active",
		LastAudit:    rec.LastAudit,
		NextAuditDue: rec.NextAuditDue,
		EventsCount:  rec.EventsCount,
		Violations:   rec.Violations,
	}
	if rec.CurrentLevel.Rank() >= domain.LevelGold.Rank() {
		report.CertificateURL = fmt.Sprintf("%s/%s/%s", e.certificateBase, rec.AppID, rec.CurrentLevel)
	}
	return report, nil
}

// loadOrInit returns the record for an app, creating a bronze baseline for
// first contact. Caller holds the app lock.
func (e *Engine) loadOrInit(ctx context.Context, appID domain.AppID) (*Record, error) {
	rec, err := e.store.Get(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load compliance record", err)
	}
	if rec == nil {
		rec = &Record{
			AppID:        appID,
			CurrentLevel: domain.LevelBronze,
			MonthlyStart: e.now().UTC(),
		}
	}
	return rec, nil
}
