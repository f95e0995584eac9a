/*
Package sqlite provides a SQLite-backed implementation of dues.Store.

PURPOSE:
  Implements every persistence interface of the dues engine using
  SQLite. The same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  members:      Club roster
  dues_months:  Sparse per-member, per-month payment records
  reminder_log: Append-only fired-stage log
  extensions:   Temporary escalation suppressions
  forgiveness:  Month-specific waivers
  templates:    Stage message templates
  settings:     Single-row category switches

IDEMPOTENCY ENFORCEMENT:
  reminder_log carries UNIQUE(member_id, month, stage). Record uses
  INSERT OR IGNORE and inspects RowsAffected: zero rows means the
  triple already existed, reported as dues.ErrStageAlreadyFired. The
  uniqueness check and the write are one statement, so the guard holds
  even when more than one process runs the daily tick.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements touch reminder_log. Month records are
  superseded via upsert, never deleted; extensions are revoked via the
  active flag.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't
  block the single writer.

SEE ALSO:
  - dues/store.go: Interface definitions
  - dues/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/club-engine/dues"
)

// Store implements dues.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ dues.Store = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Club roster
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		exempt BOOLEAN NOT NULL DEFAULT FALSE,
		platform_id TEXT NOT NULL DEFAULT '',
		monthly_dues TEXT NOT NULL DEFAULT '0',
		joined_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Sparse month records: at most one per (member, month), never deleted
	CREATE TABLE IF NOT EXISTS dues_months (
		member_id TEXT NOT NULL,
		month TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (member_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_dues_months_month
		ON dues_months(month);

	-- CRITICAL: the idempotency guarantee. A (member, month, stage) triple
	-- appears at most once; Record relies on this constraint for race
	-- safety across concurrent scheduler processes.
	CREATE TABLE IF NOT EXISTS reminder_log (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		month TEXT NOT NULL,
		stage INTEGER NOT NULL,
		fired_at TEXT NOT NULL,
		run_id TEXT NOT NULL,
		UNIQUE(member_id, month, stage)
	);

	CREATE INDEX IF NOT EXISTS idx_reminder_log_member_month
		ON reminder_log(member_id, month);
	CREATE INDEX IF NOT EXISTS idx_reminder_log_member_stage
		ON reminder_log(member_id, stage);

	-- Extensions: revoked via active flag or natural date expiry, not deletion
	CREATE TABLE IF NOT EXISTS extensions (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		valid_until TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL,
		granted_by TEXT NOT NULL DEFAULT '',
		granted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extensions_member_active
		ON extensions(member_id, active);

	-- Forgiveness: one per (member, month)
	CREATE TABLE IF NOT EXISTS forgiveness (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		month TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		granted_by TEXT NOT NULL DEFAULT '',
		granted_at TEXT NOT NULL,
		UNIQUE(member_id, month)
	);

	-- Stage message templates
	CREATE TABLE IF NOT EXISTS templates (
		stage INTEGER PRIMARY KEY,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TEXT NOT NULL
	);

	-- Single-row settings
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		email_reminders_enabled BOOLEAN NOT NULL,
		suspension_enabled BOOLEAN NOT NULL,
		removal_enabled BOOLEAN NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const timeLayout = time.RFC3339

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) SaveMember(ctx context.Context, m dues.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, email, exempt, platform_id, monthly_dues, joined_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			exempt = excluded.exempt,
			platform_id = excluded.platform_id,
			monthly_dues = excluded.monthly_dues,
			joined_at = excluded.joined_at`,
		string(m.ID), m.Name, m.Email, m.Exempt, m.PlatformID,
		m.MonthlyDues.String(), m.JoinedAt.UTC().Format(timeLayout),
		time.Now().UTC().Format(timeLayout))
	return err
}

func (s *Store) GetMember(ctx context.Context, id dues.MemberID) (*dues.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, exempt, platform_id, monthly_dues, joined_at, created_at
		FROM members WHERE id = ?`, string(id))
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]dues.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, exempt, platform_id, monthly_dues, joined_at, created_at
		FROM members ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []dues.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*dues.Member, error) {
	var m dues.Member
	var duesStr, joinedAt, createdAt string
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Exempt, &m.PlatformID, &duesStr, &joinedAt, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if m.MonthlyDues, err = decimal.NewFromString(duesStr); err != nil {
		return nil, fmt.Errorf("bad monthly_dues %q: %w", duesStr, err)
	}
	if m.JoinedAt, err = time.Parse(timeLayout, joinedAt); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// MONTH RECORDS
// =============================================================================

func (s *Store) GetMonth(ctx context.Context, id dues.MemberID, month dues.MonthKey) (*dues.DuesMonthRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT member_id, month, status, notes, updated_by, updated_at
		FROM dues_months WHERE member_id = ? AND month = ?`, string(id), string(month))
	rec, err := scanMonth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) UpsertMonth(ctx context.Context, rec dues.DuesMonthRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dues_months (member_id, month, status, notes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, month) DO UPDATE SET
			status = excluded.status,
			notes = excluded.notes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		string(rec.MemberID), string(rec.Month), string(rec.Status), rec.Notes,
		string(rec.UpdatedBy), rec.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (s *Store) ListMonth(ctx context.Context, month dues.MonthKey) ([]dues.DuesMonthRecord, error) {
	return s.queryMonths(ctx, `
		SELECT member_id, month, status, notes, updated_by, updated_at
		FROM dues_months WHERE month = ? ORDER BY member_id`, string(month))
}

func (s *Store) ListMemberMonths(ctx context.Context, id dues.MemberID) ([]dues.DuesMonthRecord, error) {
	return s.queryMonths(ctx, `
		SELECT member_id, month, status, notes, updated_by, updated_at
		FROM dues_months WHERE member_id = ? ORDER BY updated_at`, string(id))
}

func (s *Store) queryMonths(ctx context.Context, query string, arg any) ([]dues.DuesMonthRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []dues.DuesMonthRecord
	for rows.Next() {
		rec, err := scanMonth(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanMonth(row rowScanner) (*dues.DuesMonthRecord, error) {
	var rec dues.DuesMonthRecord
	var updatedAt string
	if err := row.Scan(&rec.MemberID, &rec.Month, &rec.Status, &rec.Notes, &rec.UpdatedBy, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// REMINDER LOG - Append-only
// =============================================================================

// Record is the conditional insert-if-absent. The UNIQUE constraint makes
// the check and the write a single atomic statement.
func (s *Store) Record(ctx context.Context, e dues.ReminderEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reminder_log (id, member_id, month, stage, fired_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.MemberID), string(e.Month), int(e.Stage),
		e.FiredAt.UTC().Format(timeLayout), e.RunID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dues.ErrStageAlreadyFired
	}
	return nil
}

func (s *Store) HasFired(ctx context.Context, id dues.MemberID, month dues.MonthKey, stage dues.Stage) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM reminder_log WHERE member_id = ? AND month = ? AND stage = ?`,
		string(id), string(month), int(stage)).Scan(&n)
	return n > 0, err
}

func (s *Store) HasFiredAny(ctx context.Context, id dues.MemberID, stage dues.Stage) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM reminder_log WHERE member_id = ? AND stage = ?`,
		string(id), int(stage)).Scan(&n)
	return n > 0, err
}

func (s *Store) Entries(ctx context.Context, id dues.MemberID, month dues.MonthKey) ([]dues.ReminderEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, month, stage, fired_at, run_id
		FROM reminder_log WHERE member_id = ? AND month = ? ORDER BY stage`,
		string(id), string(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []dues.ReminderEntry
	for rows.Next() {
		var e dues.ReminderEntry
		var stage int
		var firedAt string
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Month, &stage, &firedAt, &e.RunID); err != nil {
			return nil, err
		}
		e.Stage = dues.Stage(stage)
		if e.FiredAt, err = time.Parse(timeLayout, firedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// OVERRIDES
// =============================================================================

// SaveExtension deactivates any prior active extension and inserts the
// new one in a single transaction.
func (s *Store) SaveExtension(ctx context.Context, e dues.Extension) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE extensions SET active = FALSE WHERE member_id = ? AND active = TRUE`,
		string(e.MemberID)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO extensions (id, member_id, valid_until, reason, active, granted_by, granted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.MemberID), e.ValidUntil.UTC().Format(timeLayout), e.Reason,
		e.Active, e.GrantedBy, e.GrantedAt.UTC().Format(timeLayout)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ActiveExtension(ctx context.Context, id dues.MemberID) (*dues.Extension, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, valid_until, reason, active, granted_by, granted_at
		FROM extensions WHERE member_id = ? AND active = TRUE
		ORDER BY granted_at DESC LIMIT 1`, string(id))

	var e dues.Extension
	var validUntil, grantedAt string
	err := row.Scan(&e.ID, &e.MemberID, &validUntil, &e.Reason, &e.Active, &e.GrantedBy, &grantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.ValidUntil, err = time.Parse(timeLayout, validUntil); err != nil {
		return nil, err
	}
	if e.GrantedAt, err = time.Parse(timeLayout, grantedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) DeactivateExtension(ctx context.Context, id dues.MemberID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE extensions SET active = FALSE WHERE member_id = ? AND active = TRUE`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dues.ErrNoActiveExtension
	}
	return nil
}

// SaveForgiveness is idempotent: UNIQUE(member_id, month) plus INSERT OR
// IGNORE make a duplicate grant a successful no-op.
func (s *Store) SaveForgiveness(ctx context.Context, f dues.Forgiveness) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO forgiveness (id, member_id, month, reason, granted_by, granted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.MemberID), string(f.Month), f.Reason, f.GrantedBy,
		f.GrantedAt.UTC().Format(timeLayout))
	return err
}

func (s *Store) GetForgiveness(ctx context.Context, id dues.MemberID, month dues.MonthKey) (*dues.Forgiveness, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, month, reason, granted_by, granted_at
		FROM forgiveness WHERE member_id = ? AND month = ?`, string(id), string(month))

	var f dues.Forgiveness
	var grantedAt string
	err := row.Scan(&f.ID, &f.MemberID, &f.Month, &f.Reason, &f.GrantedBy, &grantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if f.GrantedAt, err = time.Parse(timeLayout, grantedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// =============================================================================
// TEMPLATES
// =============================================================================

func (s *Store) SaveTemplate(ctx context.Context, t dues.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (stage, subject, body, active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stage) DO UPDATE SET
			subject = excluded.subject,
			body = excluded.body,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		int(t.Stage), t.Subject, t.Body, t.Active,
		time.Now().UTC().Format(timeLayout))
	return err
}

func (s *Store) GetTemplate(ctx context.Context, stage dues.Stage) (*dues.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT stage, subject, body, active, updated_at
		FROM templates WHERE stage = ?`, int(stage))
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]dues.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, subject, body, active, updated_at
		FROM templates ORDER BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []dues.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func scanTemplate(row rowScanner) (*dues.Template, error) {
	var t dues.Template
	var stage int
	var updatedAt string
	if err := row.Scan(&stage, &t.Subject, &t.Body, &t.Active, &updatedAt); err != nil {
		return nil, err
	}
	t.Stage = dues.Stage(stage)
	var err error
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) GetSettings(ctx context.Context) (dues.Settings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT email_reminders_enabled, suspension_enabled, removal_enabled
		FROM settings WHERE id = 1`)

	var cfg dues.Settings
	err := row.Scan(&cfg.EmailRemindersEnabled, &cfg.SuspensionEnabled, &cfg.RemovalEnabled)
	if err == sql.ErrNoRows {
		return dues.DefaultSettings(), nil
	}
	if err != nil {
		return dues.Settings{}, err
	}
	return cfg, nil
}

func (s *Store) SaveSettings(ctx context.Context, cfg dues.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, email_reminders_enabled, suspension_enabled, removal_enabled)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email_reminders_enabled = excluded.email_reminders_enabled,
			suspension_enabled = excluded.suspension_enabled,
			removal_enabled = excluded.removal_enabled`,
		cfg.EmailRemindersEnabled, cfg.SuspensionEnabled, cfg.RemovalEnabled)
	return err
}
