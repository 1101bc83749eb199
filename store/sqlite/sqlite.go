/*
Package sqlite provides the SQLite-backed implementation of
finance.TxStore.

PURPOSE:
  Persists users (ledger accounts), the product catalog, the
  application registry, the card-number index, and the transfer
  journal. The same SQL shapes port to PostgreSQL with minor dialect
  changes.

UNIQUENESS:
  card_numbers has the number as PRIMARY KEY and is never deleted
  from, so a card number stays reserved after its loan is settled.
  Writing an application with a taken card number fails with
  finance.ErrConflict at insert time, which closes the race between
  the generator's existence check and the commit.

CONCURRENCY:
  A sync.Mutex serializes WithTx and the direct write paths, the same
  discipline the engine's in-memory store uses. SQLite runs in WAL
  mode so readers are not blocked.

MIGRATION:
  Schema is created on New(). For production use a versioned migration
  tool instead.
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

	"github.com/familybank/product-engine/finance"
)

// Store implements finance.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ finance.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
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

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		nickname TEXT NOT NULL UNIQUE,
		family_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		balance TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_family ON users(family_id);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guardian_id INTEGER NOT NULL REFERENCES users(id),
		family_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		rate INTEGER NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		period_days INTEGER NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_family ON products(family_id);

	CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		applicant_id INTEGER NOT NULL REFERENCES users(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		allowed INTEGER NOT NULL DEFAULT 0,
		card_number TEXT,
		originated_at TEXT,
		origination_day INTEGER,
		expires_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_applications_applicant
		ON applications(applicant_id);
	CREATE INDEX IF NOT EXISTS idx_applications_product_pending
		ON applications(product_id) WHERE allowed = 0;

	-- Interest accrual hot path: active loans by origination day-of-month
	CREATE INDEX IF NOT EXISTS idx_applications_accrual
		ON applications(origination_day) WHERE allowed = 1 AND kind = 'loan';

	-- Expiry settlement hot path
	CREATE INDEX IF NOT EXISTS idx_applications_expiry
		ON applications(expires_at) WHERE allowed = 1 AND kind = 'loan';

	-- Every card number ever issued. Never deleted from: uniqueness
	-- holds across the full history, not just live applications.
	CREATE TABLE IF NOT EXISTS card_numbers (
		number TEXT PRIMARY KEY,
		application_id INTEGER NOT NULL,
		issued_at TEXT NOT NULL
	);

	-- Transfer journal (append-only)
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_user_id INTEGER NOT NULL,
		to_user_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		application_id INTEGER NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_user_id);
	CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id finance.UserID) (finance.User, error) {
	return s.getUser(ctx, s.db, id)
}

func (s *Store) getUser(ctx context.Context, db dbtx, id finance.UserID) (finance.User, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, nickname, family_id, role, balance FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) FindUserByNickname(ctx context.Context, nickname string) (finance.User, error) {
	return s.findUserByNickname(ctx, s.db, nickname)
}

func (s *Store) findUserByNickname(ctx context.Context, db dbtx, nickname string) (finance.User, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, nickname, family_id, role, balance FROM users WHERE nickname = ?`, nickname)
	return scanUser(row)
}

func scanUser(row *sql.Row) (finance.User, error) {
	var (
		u       finance.User
		balance string
	)
	err := row.Scan(&u.ID, &u.Nickname, &u.FamilyID, &u.Role, &balance)
	if err == sql.ErrNoRows {
		return finance.User{}, finance.ErrNotFound
	}
	if err != nil {
		return finance.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Balance = finance.MustParseMoney(balance)
	return u, nil
}

func (s *Store) SaveUser(ctx context.Context, u finance.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveUser(ctx, s.db, u)
}

func (s *Store) saveUser(ctx context.Context, db dbtx, u finance.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, nickname, family_id, role, balance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			nickname = excluded.nickname,
			family_id = excluded.family_id,
			role = excluded.role,
			balance = excluded.balance`,
		u.ID, u.Nickname, u.FamilyID, u.Role, u.Balance.Value.String())
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", u.ID, err)
	}
	return nil
}

func (s *Store) AdjustBalance(ctx context.Context, id finance.UserID, delta finance.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustBalance(ctx, s.db, id, delta)
}

func (s *Store) adjustBalance(ctx context.Context, db dbtx, id finance.UserID, delta finance.Money) error {
	var balance string
	err := db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, id).Scan(&balance)
	if err == sql.ErrNoRows {
		return finance.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance for user %d: %w", id, err)
	}

	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("corrupt balance for user %d: %w", id, err)
	}
	next := current.Add(delta.Value)

	_, err = db.ExecContext(ctx, `UPDATE users SET balance = ? WHERE id = ?`, next.String(), id)
	if err != nil {
		return fmt.Errorf("failed to adjust balance for user %d: %w", id, err)
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) CreateProduct(ctx context.Context, p finance.FinancialProduct) (finance.ProductID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProduct(ctx, s.db, p)
}

func (s *Store) createProduct(ctx context.Context, db dbtx, p finance.FinancialProduct) (finance.ProductID, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO products (guardian_id, family_id, name, rate, info, period_days, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.GuardianID, p.FamilyID, p.Name, p.Rate, p.Info, p.PeriodDays, p.Kind)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read product id: %w", err)
	}
	return finance.ProductID(id), nil
}

func (s *Store) GetProduct(ctx context.Context, id finance.ProductID) (finance.FinancialProduct, error) {
	return s.getProduct(ctx, s.db, id)
}

func (s *Store) getProduct(ctx context.Context, db dbtx, id finance.ProductID) (finance.FinancialProduct, error) {
	var p finance.FinancialProduct
	err := db.QueryRowContext(ctx, `
		SELECT id, guardian_id, family_id, name, rate, info, period_days, kind
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.GuardianID, &p.FamilyID, &p.Name, &p.Rate, &p.Info, &p.PeriodDays, &p.Kind)
	if err == sql.ErrNoRows {
		return finance.FinancialProduct{}, finance.ErrNotFound
	}
	if err != nil {
		return finance.FinancialProduct{}, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}

func (s *Store) ListProductsByFamily(ctx context.Context, family finance.FamilyID) ([]finance.FinancialProduct, error) {
	return s.listProductsByFamily(ctx, s.db, family)
}

func (s *Store) listProductsByFamily(ctx context.Context, db dbtx, family finance.FamilyID) ([]finance.FinancialProduct, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, guardian_id, family_id, name, rate, info, period_days, kind
		FROM products WHERE family_id = ? ORDER BY id`, family)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []finance.FinancialProduct
	for rows.Next() {
		var p finance.FinancialProduct
		if err := rows.Scan(&p.ID, &p.GuardianID, &p.FamilyID, &p.Name, &p.Rate, &p.Info, &p.PeriodDays, &p.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// APPLICATIONS
// =============================================================================

const applicationColumns = `id, applicant_id, product_id, kind, amount, allowed, card_number, originated_at, expires_at`

func (s *Store) CreateApplication(ctx context.Context, a finance.Application) (finance.ApplicationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createApplication(ctx, s.db, a)
}

func (s *Store) createApplication(ctx context.Context, db dbtx, a finance.Application) (finance.ApplicationID, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO applications (applicant_id, product_id, kind, amount, allowed, card_number, originated_at, origination_day, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ApplicantID, a.ProductID, a.Kind, a.Amount.Value.String(), boolToInt(a.Allowed),
		nullString(a.CardNumber), nullTime(a.OriginatedAt), nullDay(a.OriginatedAt), nullTime(a.ExpiresAt))
	if err != nil {
		return 0, fmt.Errorf("failed to create application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read application id: %w", err)
	}
	return finance.ApplicationID(id), nil
}

func (s *Store) GetApplication(ctx context.Context, id finance.ApplicationID) (finance.Application, error) {
	return s.getApplication(ctx, s.db, id)
}

func (s *Store) getApplication(ctx context.Context, db dbtx, id finance.ApplicationID) (finance.Application, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	a, err := scanApplication(row.Scan)
	if err == sql.ErrNoRows {
		return finance.Application{}, finance.ErrNotFound
	}
	if err != nil {
		return finance.Application{}, fmt.Errorf("failed to scan application: %w", err)
	}
	return a, nil
}

func (s *Store) UpdateApplication(ctx context.Context, a finance.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateApplication(ctx, s.db, a)
}

func (s *Store) updateApplication(ctx context.Context, db dbtx, a finance.Application) error {
	if a.CardNumber != "" {
		if err := s.reserveCardNumber(ctx, db, a.CardNumber, a.ID); err != nil {
			return err
		}
	}

	res, err := db.ExecContext(ctx, `
		UPDATE applications
		SET allowed = ?, card_number = ?, originated_at = ?, origination_day = ?, expires_at = ?
		WHERE id = ?`,
		boolToInt(a.Allowed), nullString(a.CardNumber), nullTime(a.OriginatedAt),
		nullDay(a.OriginatedAt), nullTime(a.ExpiresAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update application %d: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrNotFound
	}
	return nil
}

// reserveCardNumber inserts into the permanent card index. A number
// already held by another application surfaces as ErrConflict.
func (s *Store) reserveCardNumber(ctx context.Context, db dbtx, number string, app finance.ApplicationID) error {
	var owner finance.ApplicationID
	err := db.QueryRowContext(ctx,
		`SELECT application_id FROM card_numbers WHERE number = ?`, number).Scan(&owner)
	switch {
	case err == sql.ErrNoRows:
		_, err = db.ExecContext(ctx,
			`INSERT INTO card_numbers (number, application_id, issued_at) VALUES (?, ?, ?)`,
			number, app, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			if isUniqueConstraintError(err) {
				return finance.ErrConflict
			}
			return fmt.Errorf("failed to reserve card number: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to check card number: %w", err)
	case owner != app:
		return finance.ErrConflict
	default:
		return nil
	}
}

func (s *Store) DeleteApplication(ctx context.Context, id finance.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteApplication(ctx, s.db, id)
}

func (s *Store) deleteApplication(ctx context.Context, db dbtx, id finance.ApplicationID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return finance.ErrNotFound
	}
	return nil
}

const pendingByFamilyQuery = `
	SELECT a.id, a.applicant_id, a.product_id, a.kind, a.amount, a.allowed, a.card_number, a.originated_at, a.expires_at
	FROM applications a
	JOIN users u ON u.id = a.applicant_id
	WHERE u.family_id = ? AND a.allowed = 0
	ORDER BY a.id DESC`

const pendingByProductQuery = `
	SELECT ` + applicationColumns + ` FROM applications
	WHERE product_id = ? AND allowed = 0
	ORDER BY id DESC`

const byApplicantQuery = `
	SELECT ` + applicationColumns + ` FROM applications
	WHERE applicant_id = ?
	ORDER BY id DESC`

const accruingOnQuery = `
	SELECT ` + applicationColumns + ` FROM applications
	WHERE kind = 'loan' AND allowed = 1 AND origination_day = ?
	ORDER BY id`

const expiredBeforeQuery = `
	SELECT ` + applicationColumns + ` FROM applications
	WHERE kind = 'loan' AND allowed = 1 AND expires_at IS NOT NULL AND expires_at < ?
	ORDER BY id`

func (s *Store) ListPendingByFamily(ctx context.Context, family finance.FamilyID) ([]finance.Application, error) {
	return s.queryApplications(ctx, s.db, pendingByFamilyQuery, family)
}

func (s *Store) ListPendingByProduct(ctx context.Context, product finance.ProductID) ([]finance.Application, error) {
	return s.queryApplications(ctx, s.db, pendingByProductQuery, product)
}

func (s *Store) ListByApplicant(ctx context.Context, applicant finance.UserID) ([]finance.Application, error) {
	return s.queryApplications(ctx, s.db, byApplicantQuery, applicant)
}

func (s *Store) ListLoansAccruingOn(ctx context.Context, dayOfMonth int) ([]finance.Application, error) {
	return s.queryApplications(ctx, s.db, accruingOnQuery, dayOfMonth)
}

func (s *Store) ListLoansExpiredBefore(ctx context.Context, now time.Time) ([]finance.Application, error) {
	return s.queryApplications(ctx, s.db, expiredBeforeQuery, now.UTC().Format(time.RFC3339))
}

func (s *Store) queryApplications(ctx context.Context, db dbtx, query string, args ...any) ([]finance.Application, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var out []finance.Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApplication(scan func(dest ...any) error) (finance.Application, error) {
	var (
		a          finance.Application
		amount     string
		allowed    int
		card       sql.NullString
		originated sql.NullString
		expires    sql.NullString
	)
	if err := scan(&a.ID, &a.ApplicantID, &a.ProductID, &a.Kind, &amount, &allowed, &card, &originated, &expires); err != nil {
		return finance.Application{}, err
	}
	a.Amount = finance.MustParseMoney(amount)
	a.Allowed = allowed != 0
	a.CardNumber = card.String
	a.OriginatedAt = parseTime(originated)
	a.ExpiresAt = parseTime(expires)
	return a, nil
}

// =============================================================================
// CARD INDEX AND JOURNAL
// =============================================================================

func (s *Store) CardNumberExists(ctx context.Context, number string) (bool, error) {
	return s.cardNumberExists(ctx, s.db, number)
}

func (s *Store) cardNumberExists(ctx context.Context, db dbtx, number string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM card_numbers WHERE number = ?`, number).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check card number: %w", err)
	}
	return n > 0, nil
}

func (s *Store) AppendTransfer(ctx context.Context, t finance.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendTransfer(ctx, s.db, t)
}

func (s *Store) appendTransfer(ctx context.Context, db dbtx, t finance.Transfer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transfers (id, from_user_id, to_user_id, amount, reason, application_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FromUserID, t.ToUserID, t.Amount.Value.String(), t.Reason, t.ApplicationID,
		t.At.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append transfer: %w", err)
	}
	return nil
}

func (s *Store) TransfersByUser(ctx context.Context, id finance.UserID) ([]finance.Transfer, error) {
	return s.transfersByUser(ctx, s.db, id)
}

func (s *Store) transfersByUser(ctx context.Context, db dbtx, id finance.UserID) ([]finance.Transfer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, from_user_id, to_user_id, amount, reason, application_id, at
		FROM transfers
		WHERE from_user_id = ? OR to_user_id = ?
		ORDER BY at, id`, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var out []finance.Transfer
	for rows.Next() {
		var (
			t      finance.Transfer
			amount string
			at     string
		)
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &amount, &t.Reason, &t.ApplicationID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.Amount = finance.MustParseMoney(amount)
		t.At, _ = time.Parse(time.RFC3339, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn inside a database transaction. The store mutex is
// held for the duration, so units of work are serialized the same way
// the memory store serializes them.
func (s *Store) WithTx(ctx context.Context, fn func(store finance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

var _ finance.Store = (*txStore)(nil)

func (ts *txStore) GetUser(ctx context.Context, id finance.UserID) (finance.User, error) {
	return ts.parent.getUser(ctx, ts.tx, id)
}

func (ts *txStore) FindUserByNickname(ctx context.Context, nickname string) (finance.User, error) {
	return ts.parent.findUserByNickname(ctx, ts.tx, nickname)
}

func (ts *txStore) SaveUser(ctx context.Context, u finance.User) error {
	return ts.parent.saveUser(ctx, ts.tx, u)
}

func (ts *txStore) AdjustBalance(ctx context.Context, id finance.UserID, delta finance.Money) error {
	return ts.parent.adjustBalance(ctx, ts.tx, id, delta)
}

func (ts *txStore) CreateProduct(ctx context.Context, p finance.FinancialProduct) (finance.ProductID, error) {
	return ts.parent.createProduct(ctx, ts.tx, p)
}

func (ts *txStore) GetProduct(ctx context.Context, id finance.ProductID) (finance.FinancialProduct, error) {
	return ts.parent.getProduct(ctx, ts.tx, id)
}

func (ts *txStore) ListProductsByFamily(ctx context.Context, family finance.FamilyID) ([]finance.FinancialProduct, error) {
	return ts.parent.listProductsByFamily(ctx, ts.tx, family)
}

func (ts *txStore) CreateApplication(ctx context.Context, a finance.Application) (finance.ApplicationID, error) {
	return ts.parent.createApplication(ctx, ts.tx, a)
}

func (ts *txStore) GetApplication(ctx context.Context, id finance.ApplicationID) (finance.Application, error) {
	return ts.parent.getApplication(ctx, ts.tx, id)
}

func (ts *txStore) UpdateApplication(ctx context.Context, a finance.Application) error {
	return ts.parent.updateApplication(ctx, ts.tx, a)
}

func (ts *txStore) DeleteApplication(ctx context.Context, id finance.ApplicationID) error {
	return ts.parent.deleteApplication(ctx, ts.tx, id)
}

func (ts *txStore) ListPendingByFamily(ctx context.Context, family finance.FamilyID) ([]finance.Application, error) {
	return ts.parent.queryApplications(ctx, ts.tx, pendingByFamilyQuery, family)
}

func (ts *txStore) ListPendingByProduct(ctx context.Context, product finance.ProductID) ([]finance.Application, error) {
	return ts.parent.queryApplications(ctx, ts.tx, pendingByProductQuery, product)
}

func (ts *txStore) ListByApplicant(ctx context.Context, applicant finance.UserID) ([]finance.Application, error) {
	return ts.parent.queryApplications(ctx, ts.tx, byApplicantQuery, applicant)
}

func (ts *txStore) ListLoansAccruingOn(ctx context.Context, dayOfMonth int) ([]finance.Application, error) {
	return ts.parent.queryApplications(ctx, ts.tx, accruingOnQuery, dayOfMonth)
}

func (ts *txStore) ListLoansExpiredBefore(ctx context.Context, now time.Time) ([]finance.Application, error) {
	return ts.parent.queryApplications(ctx, ts.tx, expiredBeforeQuery, now.UTC().Format(time.RFC3339))
}

func (ts *txStore) CardNumberExists(ctx context.Context, number string) (bool, error) {
	return ts.parent.cardNumberExists(ctx, ts.tx, number)
}

func (ts *txStore) AppendTransfer(ctx context.Context, t finance.Transfer) error {
	return ts.parent.appendTransfer(ctx, ts.tx, t)
}

func (ts *txStore) TransfersByUser(ctx context.Context, id finance.UserID) ([]finance.Transfer, error) {
	return ts.parent.transfersByUser(ctx, ts.tx, id)
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
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullDay derives the day from the same UTC instant nullTime stores,
// so the indexed day always agrees with the parsed timestamp.
func nullDay(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(t.UTC().Day()), Valid: true}
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, ns.String)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
