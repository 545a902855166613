/*
Package sqlite provides the SQLite-backed implementation of every
storage interface in the engine. In production, the same patterns apply
to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store / ledger.TxStore   Transaction ledger, projection, audit log
  earning.CheckInStore            Daily check-in records
  earning.PromoStore              Promo codes and redemptions
  earning.ReferralStore           Referral codes, edges, commissions

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement ever touches the transactions or
  audit_log tables. The only mutable rows are the profiles projection,
  the promo usage counter and the one-way referral edge transition.

UNIQUENESS AS THE IDEMPOTENCY MECHANISM:
  The constraints below are the primary defense against double-crediting,
  not application-level checks:
  - transactions.idempotency_key UNIQUE       one event per feature key
  - checkins (user_id, date) UNIQUE           one check-in per day
  - promo_redemptions (user_id, code) UNIQUE  one redemption per code
  - referrals (referrer, referred, level) UNIQUE
  - referral_commissions (source_tx, level) UNIQUE

TRANSACTIONS:
  WithTx hands the callback a transaction-scoped view that satisfies all
  the extended store interfaces, so an atomic unit can mix ledger writes
  with feature-table writes and commit or roll back together.

CONCURRENCY:
  Uses sync.RWMutex for in-process safety; WithTx holds the write lock
  for the whole unit. SQLite runs in WAL mode. With PostgreSQL,
  database-level concurrency control handles this instead.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/earning"
	"github.com/warp/points-engine/ledger"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) a store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Point transactions (append-only ledger, source of truth)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('earn', 'redeem')),
		amount INTEGER NOT NULL CHECK (amount > 0),
		cause TEXT NOT NULL,
		description TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_cause
		ON transactions(user_id, cause, created_at);

	-- Balance projection (one mutable row per user)
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		total_earned INTEGER NOT NULL DEFAULT 0 CHECK (total_earned >= 0),
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only, forensics)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		old_points INTEGER NOT NULL,
		new_points INTEGER NOT NULL,
		reason TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		changed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_user
		ON audit_log(user_id, changed_at);

	-- Daily check-ins: one per user per calendar day
	CREATE TABLE IF NOT EXISTS checkins (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		day_in_cycle INTEGER NOT NULL,
		streak INTEGER NOT NULL,
		points INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, date)
	);

	-- Referral codes: one per user, globally unique
	CREATE TABLE IF NOT EXISTS referral_codes (
		code TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Referral edges: pending -> completed, one-way
	CREATE TABLE IF NOT EXISTS referrals (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL,
		referred_id TEXT NOT NULL,
		code TEXT NOT NULL,
		level INTEGER NOT NULL CHECK (level BETWEEN 1 AND 3),
		status TEXT NOT NULL DEFAULT 'pending',
		points_awarded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (referrer_id, referred_id, level)
	);

	CREATE INDEX IF NOT EXISTS idx_referrals_referred
		ON referrals(referred_id, level);

	-- Commission payouts: at most one per (source transaction, level)
	CREATE TABLE IF NOT EXISTS referral_commissions (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL,
		referred_id TEXT NOT NULL,
		source_tx_id TEXT NOT NULL,
		original_points INTEGER NOT NULL,
		commission_pct TEXT NOT NULL,
		commission_points INTEGER NOT NULL,
		level INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (source_tx_id, level)
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_referrer
		ON referral_commissions(referrer_id, created_at);

	-- Promo codes and redemptions
	CREATE TABLE IF NOT EXISTS promo_codes (
		code TEXT PRIMARY KEY,
		points INTEGER NOT NULL CHECK (points > 0),
		max_uses INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		valid_from TEXT,
		valid_until TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS promo_redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		code TEXT NOT NULL,
		points INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, code)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION-SCOPED VIEW
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view carries all query logic, bound either to the database or to an
// open transaction.
type view struct {
	q dbtx
}

var (
	_ ledger.Store          = (*view)(nil)
	_ earning.CheckInStore  = (*view)(nil)
	_ earning.PromoStore    = (*view)(nil)
	_ earning.ReferralStore = (*view)(nil)
	_ ledger.TxStore        = (*Store)(nil)
	_ earning.CheckInStore  = (*Store)(nil)
	_ earning.PromoStore    = (*Store)(nil)
	_ earning.ReferralStore = (*Store)(nil)
)

// WithTx executes fn within one database transaction. The ledger.Store
// handed to fn also satisfies the earning store interfaces.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&view{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (v *view) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, kind, amount, cause, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Kind, tx.Amount, tx.Cause, tx.Description,
		nullString(tx.IdempotencyKey), tx.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: key %q", ledger.ErrDuplicateSubmission, tx.IdempotencyKey)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

const txColumns = `id, user_id, kind, amount, cause, description, idempotency_key, created_at`

func (v *view) Transactions(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	return v.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`, user)
}

func (v *view) TransactionsSince(ctx context.Context, user ledger.UserID, since time.Time) ([]ledger.Transaction, error) {
	return v.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC`,
		user, since.UTC().Format(timeLayout))
}

func (v *view) CountByCauseOn(ctx context.Context, user ledger.UserID, cause ledger.Cause, day time.Time) (int, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int
	err := v.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND cause = ? AND created_at >= ? AND created_at < ?`,
		user, cause, dayStart.Format(timeLayout), dayEnd.Format(timeLayout),
	).Scan(&count)
	return count, err
}

func (v *view) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx             ledger.Transaction
			description    sql.NullString
			idempotencyKey sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Kind, &tx.Amount, &tx.Cause,
			&description, &idempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Description = description.String
		tx.IdempotencyKey = idempotencyKey.String
		tx.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (v *view) GetProfile(ctx context.Context, user ledger.UserID) (*ledger.Profile, error) {
	var (
		p         ledger.Profile
		updatedAt string
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT user_id, points, total_earned, updated_at FROM profiles WHERE user_id = ?`,
		user,
	).Scan(&p.UserID, &p.Points, &p.TotalEarned, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ledger.ErrProfileNotFound, user)
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &p, nil
}

func (v *view) SaveProfile(ctx context.Context, p ledger.Profile) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, points, total_earned, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			points = excluded.points,
			total_earned = excluded.total_earned,
			updated_at = excluded.updated_at`,
		p.UserID, p.Points, p.TotalEarned, p.UpdatedAt.UTC().Format(timeLayout),
	)
	return err
}

func (v *view) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, old_points, new_points, reason, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.OldPoints, e.NewPoints, e.Reason, e.ChangedBy,
		e.ChangedAt.UTC().Format(timeLayout),
	)
	return err
}

func (v *view) AuditTrail(ctx context.Context, user ledger.UserID) ([]ledger.AuditEntry, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, user_id, old_points, new_points, reason, changed_by, changed_at
		FROM audit_log WHERE user_id = ?
		ORDER BY changed_at ASC, id ASC`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e         ledger.AuditEntry
			changedAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.OldPoints, &e.NewPoints,
			&e.Reason, &e.ChangedBy, &changedAt); err != nil {
			return nil, err
		}
		e.ChangedAt, _ = time.Parse(timeLayout, changedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (v *view) ListUsers(ctx context.Context) ([]ledger.UserID, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT user_id FROM profiles
		UNION
		SELECT DISTINCT user_id FROM transactions
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.UserID
	for rows.Next() {
		var u ledger.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// CHECK-IN STORE
// =============================================================================

func (v *view) LastCheckIn(ctx context.Context, user ledger.UserID) (*earning.CheckInRecord, error) {
	var (
		rec             earning.CheckInRecord
		date, createdAt string
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT user_id, date, day_in_cycle, streak, points, created_at
		FROM checkins WHERE user_id = ?
		ORDER BY date DESC LIMIT 1`, user,
	).Scan(&rec.UserID, &date, &rec.DayInCycle, &rec.Streak, &rec.Points, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Date, _ = time.Parse(dateLayout, date)
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &rec, nil
}

func (v *view) SaveCheckIn(ctx context.Context, rec earning.CheckInRecord) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO checkins (user_id, date, day_in_cycle, streak, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Date.UTC().Format(dateLayout),
		rec.DayInCycle, rec.Streak, rec.Points,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("%w: check-in on %s", ledger.ErrDuplicateSubmission,
			rec.Date.Format(dateLayout))
	}
	return err
}

// =============================================================================
// PROMO STORE
// =============================================================================

func (v *view) GetPromo(ctx context.Context, code string) (*earning.PromoCode, error) {
	var (
		c                                earning.PromoCode
		validFrom, validUntil, createdAt sql.NullString
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT code, points, max_uses, used_count, valid_from, valid_until, created_at
		FROM promo_codes WHERE code = ?`, code,
	).Scan(&c.Code, &c.Points, &c.MaxUses, &c.UsedCount, &validFrom, &validUntil, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	scanPromoTimes(&c, validFrom, validUntil, createdAt)
	return &c, nil
}

func (v *view) SavePromo(ctx context.Context, c earning.PromoCode) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO promo_codes (code, points, max_uses, used_count, valid_from, valid_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			points = excluded.points,
			max_uses = excluded.max_uses,
			valid_from = excluded.valid_from,
			valid_until = excluded.valid_until`,
		c.Code, c.Points, c.MaxUses, c.UsedCount,
		nullTime(c.ValidFrom), nullTime(c.ValidUntil),
		c.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

func (v *view) ListPromos(ctx context.Context) ([]earning.PromoCode, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT code, points, max_uses, used_count, valid_from, valid_until, created_at
		FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []earning.PromoCode
	for rows.Next() {
		var (
			c                                earning.PromoCode
			validFrom, validUntil, createdAt sql.NullString
		)
		if err := rows.Scan(&c.Code, &c.Points, &c.MaxUses, &c.UsedCount,
			&validFrom, &validUntil, &createdAt); err != nil {
			return nil, err
		}
		scanPromoTimes(&c, validFrom, validUntil, createdAt)
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

func scanPromoTimes(c *earning.PromoCode, validFrom, validUntil, createdAt sql.NullString) {
	if validFrom.Valid {
		c.ValidFrom, _ = time.Parse(timeLayout, validFrom.String)
	}
	if validUntil.Valid {
		c.ValidUntil, _ = time.Parse(timeLayout, validUntil.String)
	}
	if createdAt.Valid {
		c.CreatedAt, _ = time.Parse(timeLayout, createdAt.String)
	}
}

func (v *view) RecordRedemption(ctx context.Context, r earning.PromoRedemption) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO promo_redemptions (id, user_id, code, points, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Code, r.Points, r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("%w: promo %q already redeemed by %s",
			ledger.ErrDuplicateSubmission, r.Code, r.UserID)
	}
	return err
}

// IncrementPromoUse bumps the usage counter. The cap check and the bump
// are one statement, so concurrent redemptions cannot overshoot the cap.
func (v *view) IncrementPromoUse(ctx context.Context, code string) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE promo_codes SET used_count = used_count + 1
		WHERE code = ? AND (max_uses = 0 OR used_count < max_uses)`, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", earning.ErrPromoExhausted, code)
	}
	return nil
}

// =============================================================================
// REFERRAL STORE
// =============================================================================

func (v *view) SaveReferralCode(ctx context.Context, user ledger.UserID, code string) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO referral_codes (code, user_id, created_at) VALUES (?, ?, ?)`,
		code, user, time.Now().UTC().Format(timeLayout),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("%w: referral code for %s", ledger.ErrDuplicateSubmission, user)
	}
	return err
}

func (v *view) UserByReferralCode(ctx context.Context, code string) (ledger.UserID, error) {
	var user ledger.UserID
	err := v.q.QueryRowContext(ctx,
		`SELECT user_id FROM referral_codes WHERE code = ?`, code,
	).Scan(&user)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return user, err
}

func (v *view) SaveEdge(ctx context.Context, e earning.ReferralEdge) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, code, level, status, points_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReferrerID, e.ReferredID, e.Code, e.Level, e.Status,
		e.PointsAwarded, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("%w: referral edge %s -> %s level %d",
			ledger.ErrDuplicateSubmission, e.ReferrerID, e.ReferredID, e.Level)
	}
	return err
}

func (v *view) EdgesByReferred(ctx context.Context, referred ledger.UserID) ([]earning.ReferralEdge, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, referrer_id, referred_id, code, level, status, points_awarded, created_at
		FROM referrals WHERE referred_id = ?
		ORDER BY level ASC`, referred)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []earning.ReferralEdge
	for rows.Next() {
		var (
			e         earning.ReferralEdge
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ReferrerID, &e.ReferredID, &e.Code,
			&e.Level, &e.Status, &e.PointsAwarded, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (v *view) DirectReferrer(ctx context.Context, referred ledger.UserID) (ledger.UserID, error) {
	var referrer ledger.UserID
	err := v.q.QueryRowContext(ctx, `
		SELECT referrer_id FROM referrals
		WHERE referred_id = ? AND level = 1 LIMIT 1`, referred,
	).Scan(&referrer)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return referrer, err
}

// MarkEdgeCompleted is a one-way transition: the WHERE clause refuses to
// touch anything but a pending edge.
func (v *view) MarkEdgeCompleted(ctx context.Context, edgeID string, awarded ledger.Points) error {
	_, err := v.q.ExecContext(ctx, `
		UPDATE referrals SET status = 'completed', points_awarded = ?
		WHERE id = ? AND status = 'pending'`, awarded, edgeID)
	return err
}

func (v *view) SaveCommission(ctx context.Context, c earning.CommissionRecord) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO referral_commissions
		(id, referrer_id, referred_id, source_tx_id, original_points, commission_pct, commission_points, level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ReferrerID, c.ReferredID, c.SourceTxID, c.OriginalPoints,
		c.Percentage.String(), c.CommissionPoints, c.Level,
		c.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil && isUniqueConstraintError(err) {
		return fmt.Errorf("%w: commission for tx %s level %d",
			ledger.ErrDuplicateSubmission, c.SourceTxID, c.Level)
	}
	return err
}

func (v *view) CommissionsForReferrer(ctx context.Context, referrer ledger.UserID) ([]earning.CommissionRecord, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, referrer_id, referred_id, source_tx_id, original_points, commission_pct, commission_points, level, created_at
		FROM referral_commissions WHERE referrer_id = ?
		ORDER BY created_at ASC`, referrer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []earning.CommissionRecord
	for rows.Next() {
		var (
			c              earning.CommissionRecord
			pct, createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ReferrerID, &c.ReferredID, &c.SourceTxID,
			&c.OriginalPoints, &pct, &c.CommissionPoints, &c.Level, &createdAt); err != nil {
			return nil, err
		}
		c.Percentage, _ = decimal.NewFromString(pct)
		c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		records = append(records, c)
	}
	return records, rows.Err()
}

// =============================================================================
// STORE-LEVEL WRAPPERS (locked, non-transactional)
// =============================================================================

func (s *Store) read() *view  { return &view{q: s.db} }
func (s *Store) write() *view { return &view{q: s.db} }

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().AppendTransaction(ctx, tx)
}

func (s *Store) Transactions(ctx context.Context, user ledger.UserID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().Transactions(ctx, user)
}

func (s *Store) TransactionsSince(ctx context.Context, user ledger.UserID, since time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().TransactionsSince(ctx, user, since)
}

func (s *Store) CountByCauseOn(ctx context.Context, user ledger.UserID, cause ledger.Cause, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CountByCauseOn(ctx, user, cause, day)
}

func (s *Store) GetProfile(ctx context.Context, user ledger.UserID) (*ledger.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetProfile(ctx, user)
}

func (s *Store) SaveProfile(ctx context.Context, p ledger.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SaveProfile(ctx, p)
}

func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().AppendAudit(ctx, e)
}

func (s *Store) AuditTrail(ctx context.Context, user ledger.UserID) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().AuditTrail(ctx, user)
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListUsers(ctx)
}

func (s *Store) LastCheckIn(ctx context.Context, user ledger.UserID) (*earning.CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().LastCheckIn(ctx, user)
}

func (s *Store) SaveCheckIn(ctx context.Context, rec earning.CheckInRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SaveCheckIn(ctx, rec)
}

func (s *Store) GetPromo(ctx context.Context, code string) (*earning.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPromo(ctx, code)
}

func (s *Store) SavePromo(ctx context.Context, c earning.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SavePromo(ctx, c)
}

func (s *Store) ListPromos(ctx context.Context) ([]earning.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListPromos(ctx)
}

func (s *Store) RecordRedemption(ctx context.Context, r earning.PromoRedemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().RecordRedemption(ctx, r)
}

func (s *Store) IncrementPromoUse(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().IncrementPromoUse(ctx, code)
}

func (s *Store) SaveReferralCode(ctx context.Context, user ledger.UserID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SaveReferralCode(ctx, user, code)
}

func (s *Store) UserByReferralCode(ctx context.Context, code string) (ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().UserByReferralCode(ctx, code)
}

func (s *Store) SaveEdge(ctx context.Context, e earning.ReferralEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SaveEdge(ctx, e)
}

func (s *Store) EdgesByReferred(ctx context.Context, referred ledger.UserID) ([]earning.ReferralEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().EdgesByReferred(ctx, referred)
}

func (s *Store) DirectReferrer(ctx context.Context, referred ledger.UserID) (ledger.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().DirectReferrer(ctx, referred)
}

func (s *Store) MarkEdgeCompleted(ctx context.Context, edgeID string, awarded ledger.Points) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().MarkEdgeCompleted(ctx, edgeID, awarded)
}

func (s *Store) SaveCommission(ctx context.Context, c earning.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write().SaveCommission(ctx, c)
}

func (s *Store) CommissionsForReferrer(ctx context.Context, referrer ledger.UserID) ([]earning.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().CommissionsForReferrer(ctx, referrer)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
