/*
Package sqlite provides SQLite-backed persistence for the royalty system.

PURPOSE:
  Stores the records the stateless engine needs snapshots of: licensees,
  contracts (with their raw terms JSON), sales periods, per-licensee column
  mappings, and advance-payment balances. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY SALES PERIODS:
  royalty_calculated and discrepancy_amount are computed once at ingestion
  and are immutable thereafter. The store exposes no UPDATE or DELETE on
  sales_periods: editing a contract never rewrites reported history, which
  keeps past discrepancy disputes reproducible.

ATOMIC PERIOD COMMIT:
  CommitSalesPeriod inserts the period and debits its advance credit inside
  one transaction. The credit recorded on the period row and the reduction
  of the remaining balance are either both visible or neither - a failed
  insert must never leave the balance understated.

KEY TABLES:
  licensees:        Licensee records
  contracts:        Contract records with raw terms JSON (factory re-parses)
  sales_periods:    Immutable per-period calculation results
  column_mappings:  One saved mapping per licensee, reused across uploads
  advance_payments: Advance amount and remaining balance per contract

DECIMAL STORAGE:
  Money columns are TEXT holding exact decimal strings. Binary floats never
  touch the schema - precision loss at the storage boundary would make
  calculated figures irreproducible.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WAL mode keeps readers unblocked.

USAGE:
  store, err := sqlite.New("./data/royalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - api/handlers.go: orchestrates engine calls around this store
  - royalty:         the pure calculation engine this store feeds
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements persistence for the royalty system using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
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
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS licensees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		licensee_id TEXT NOT NULL REFERENCES licensees(id),
		name TEXT NOT NULL,
		terms_json TEXT NOT NULL,
		rate_kind TEXT NOT NULL,
		reporting_frequency TEXT NOT NULL,
		territory TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_licensee
		ON contracts(licensee_id);

	-- Immutable per-period calculation results (no UPDATE/DELETE path)
	CREATE TABLE IF NOT EXISTS sales_periods (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		net_sales TEXT NOT NULL,
		category_breakdown_json TEXT,
		royalty_calculated TEXT NOT NULL,
		reported_royalty TEXT,
		discrepancy_status TEXT NOT NULL,
		discrepancy_amount TEXT,
		minimum_applied INTEGER NOT NULL DEFAULT 0,
		advance_credit_used TEXT NOT NULL,
		net_due TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: window totals for minimum-guarantee status
	CREATE INDEX IF NOT EXISTS idx_sales_periods_contract_start
		ON sales_periods(contract_id, period_start);

	CREATE TABLE IF NOT EXISTS column_mappings (
		licensee_id TEXT PRIMARY KEY REFERENCES licensees(id),
		mapping_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS advance_payments (
		contract_id TEXT PRIMARY KEY REFERENCES contracts(id),
		amount TEXT NOT NULL,
		remaining TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD TYPES
// =============================================================================

// Licensee is the party paying royalties.
type Licensee struct {
	ID           string
	Name         string
	ContactEmail string
	CreatedAt    time.Time
}

// Contract stores the raw terms JSON; the factory re-parses it on load so the
// typed terms always reflect the stored source of truth.
type Contract struct {
	ID                 string
	LicenseeID         string
	Name               string
	TermsJSON          string
	RateKind           string
	ReportingFrequency string
	Territory          string
	CreatedAt          time.Time
}

// SalesPeriod is one immutable reporting interval result.
type SalesPeriod struct {
	ID                    string
	ContractID            string
	PeriodStart           time.Time
	PeriodEnd             time.Time
	NetSales              decimal.Decimal
	CategoryBreakdownJSON string // empty when the contract is not category-rated
	RoyaltyCalculated     decimal.Decimal
	ReportedRoyalty       *decimal.Decimal
	DiscrepancyStatus     string
	DiscrepancyAmount     *decimal.Decimal
	MinimumApplied        bool
	AdvanceCreditUsed     decimal.Decimal
	NetDue                decimal.Decimal
	CreatedAt             time.Time
}

// Advance tracks an advance payment balance for a contract.
type Advance struct {
	ContractID string
	Amount     decimal.Decimal
	Remaining  decimal.Decimal
	UpdatedAt  time.Time
}

// SavedMapping is a licensee's persisted column mapping.
type SavedMapping struct {
	LicenseeID  string
	MappingJSON string
	UpdatedAt   time.Time
}

const dateFormat = "2006-01-02"

// =============================================================================
// LICENSEES
// =============================================================================

func (s *Store) SaveLicensee(ctx context.Context, l Licensee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO licensees (id, name, contact_email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, contact_email = excluded.contact_email`,
		l.ID, l.Name, l.ContactEmail, l.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetLicensee(ctx context.Context, id string) (*Licensee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, contact_email, created_at FROM licensees WHERE id = ?`, id)

	var l Licensee
	var createdAt string
	err := row.Scan(&l.ID, &l.Name, &l.ContactEmail, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &l, nil
}

func (s *Store) ListLicensees(ctx context.Context) ([]Licensee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, contact_email, created_at FROM licensees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licensees []Licensee
	for rows.Next() {
		var l Licensee
		var createdAt string
		if err := rows.Scan(&l.ID, &l.Name, &l.ContactEmail, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		licensees = append(licensees, l)
	}
	return licensees, rows.Err()
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *Store) SaveContract(ctx context.Context, c Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, licensee_id, name, terms_json, rate_kind, reporting_frequency, territory, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			terms_json = excluded.terms_json,
			rate_kind = excluded.rate_kind,
			reporting_frequency = excluded.reporting_frequency,
			territory = excluded.territory`,
		c.ID, c.LicenseeID, c.Name, c.TermsJSON, c.RateKind, c.ReportingFrequency,
		c.Territory, c.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) GetContract(ctx context.Context, id string) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, licensee_id, name, terms_json, rate_kind, reporting_frequency, COALESCE(territory, ''), created_at
		FROM contracts WHERE id = ?`, id)

	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListContracts(ctx context.Context, licenseeID string) ([]Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, licensee_id, name, terms_json, rate_kind, reporting_frequency, COALESCE(territory, ''), created_at
		FROM contracts`
	args := []any{}
	if licenseeID != "" {
		query += ` WHERE licensee_id = ?`
		args = append(args, licenseeID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (*Contract, error) {
	var c Contract
	var createdAt string
	err := row.Scan(&c.ID, &c.LicenseeID, &c.Name, &c.TermsJSON, &c.RateKind,
		&c.ReportingFrequency, &c.Territory, &createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// =============================================================================
// SALES PERIODS - append-only
// =============================================================================

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// insert and debit helpers run both standalone and inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AppendSalesPeriod inserts an immutable period record. There is no update
// counterpart on purpose.
func (s *Store) AppendSalesPeriod(ctx context.Context, p SalesPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSalesPeriod(ctx, s.db, p)
}

// CommitSalesPeriod inserts the period and debits its AdvanceCreditUsed from
// the contract's advance balance in one transaction. Either both writes land
// or neither does; a retried upload after a failure starts from an unchanged
// balance.
func (s *Store) CommitSalesPeriod(ctx context.Context, p SalesPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertSalesPeriod(ctx, tx, p); err != nil {
		return err
	}
	if !p.AdvanceCreditUsed.IsZero() {
		if err := debitAdvance(ctx, tx, p.ContractID, p.AdvanceCreditUsed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSalesPeriod(ctx context.Context, db dbtx, p SalesPeriod) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var reported, discrepancy any
	if p.ReportedRoyalty != nil {
		reported = p.ReportedRoyalty.String()
	}
	if p.DiscrepancyAmount != nil {
		discrepancy = p.DiscrepancyAmount.String()
	}
	var breakdown any
	if p.CategoryBreakdownJSON != "" {
		breakdown = p.CategoryBreakdownJSON
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sales_periods (
			id, contract_id, period_start, period_end, net_sales,
			category_breakdown_json, royalty_calculated, reported_royalty,
			discrepancy_status, discrepancy_amount, minimum_applied,
			advance_credit_used, net_due, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID,
		p.PeriodStart.Format(dateFormat), p.PeriodEnd.Format(dateFormat),
		p.NetSales.String(), breakdown, p.RoyaltyCalculated.String(), reported,
		p.DiscrepancyStatus, discrepancy, boolToInt(p.MinimumApplied),
		p.AdvanceCreditUsed.String(), p.NetDue.String(),
		p.CreatedAt.Format(time.RFC3339))
	return err
}

func (s *Store) ListSalesPeriods(ctx context.Context, contractID string) ([]SalesPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, period_start, period_end, net_sales,
		       COALESCE(category_breakdown_json, ''), royalty_calculated, reported_royalty,
		       discrepancy_status, discrepancy_amount, minimum_applied,
		       advance_credit_used, net_due, created_at
		FROM sales_periods
		WHERE contract_id = ?
		ORDER BY period_start`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []SalesPeriod
	for rows.Next() {
		p, err := scanSalesPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

// SumCalculatedInWindow totals royalty_calculated for periods STARTING inside
// [start, end] - the window total the minimum guarantee applies against.
func (s *Store) SumCalculatedInWindow(ctx context.Context, contractID string, start, end time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT royalty_calculated FROM sales_periods
		WHERE contract_id = ? AND period_start >= ? AND period_start <= ?`,
		contractID, start.Format(dateFormat), end.Format(dateFormat))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	// Summed in Go: SQLite's SUM would coerce the decimal strings to floats.
	total := decimal.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt royalty_calculated %q: %w", v, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func scanSalesPeriod(row scanner) (*SalesPeriod, error) {
	var p SalesPeriod
	var start, end, netSales, calculated, creditUsed, netDue, createdAt string
	var reported, discrepancy sql.NullString
	var minimumApplied int

	err := row.Scan(&p.ID, &p.ContractID, &start, &end, &netSales,
		&p.CategoryBreakdownJSON, &calculated, &reported,
		&p.DiscrepancyStatus, &discrepancy, &minimumApplied,
		&creditUsed, &netDue, &createdAt)
	if err != nil {
		return nil, err
	}

	p.PeriodStart, _ = time.Parse(dateFormat, start)
	p.PeriodEnd, _ = time.Parse(dateFormat, end)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.MinimumApplied = minimumApplied != 0

	if p.NetSales, err = decimal.NewFromString(netSales); err != nil {
		return nil, fmt.Errorf("corrupt net_sales %q: %w", netSales, err)
	}
	if p.RoyaltyCalculated, err = decimal.NewFromString(calculated); err != nil {
		return nil, fmt.Errorf("corrupt royalty_calculated %q: %w", calculated, err)
	}
	if p.AdvanceCreditUsed, err = decimal.NewFromString(creditUsed); err != nil {
		return nil, fmt.Errorf("corrupt advance_credit_used %q: %w", creditUsed, err)
	}
	if p.NetDue, err = decimal.NewFromString(netDue); err != nil {
		return nil, fmt.Errorf("corrupt net_due %q: %w", netDue, err)
	}
	if reported.Valid {
		d, err := decimal.NewFromString(reported.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt reported_royalty %q: %w", reported.String, err)
		}
		p.ReportedRoyalty = &d
	}
	if discrepancy.Valid {
		d, err := decimal.NewFromString(discrepancy.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt discrepancy_amount %q: %w", discrepancy.String, err)
		}
		p.DiscrepancyAmount = &d
	}
	return &p, nil
}

// =============================================================================
// COLUMN MAPPINGS - one saved mapping per licensee
// =============================================================================

func (s *Store) SaveColumnMapping(ctx context.Context, licenseeID, mappingJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO column_mappings (licensee_id, mapping_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(licensee_id) DO UPDATE SET
			mapping_json = excluded.mapping_json,
			updated_at = excluded.updated_at`,
		licenseeID, mappingJSON, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetColumnMapping(ctx context.Context, licenseeID string) (*SavedMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT licensee_id, mapping_json, updated_at FROM column_mappings WHERE licensee_id = ?`,
		licenseeID)

	var m SavedMapping
	var updatedAt string
	err := row.Scan(&m.LicenseeID, &m.MappingJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

// =============================================================================
// ADVANCE PAYMENTS
// =============================================================================

// SaveAdvance records a contract's advance with a full remaining balance.
func (s *Store) SaveAdvance(ctx context.Context, contractID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advance_payments (contract_id, amount, remaining, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			amount = excluded.amount,
			remaining = excluded.remaining,
			updated_at = excluded.updated_at`,
		contractID, amount.String(), amount.String(),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetAdvance(ctx context.Context, contractID string) (*Advance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAdvance(ctx, s.db, contractID)
}

// DebitAdvance lowers the remaining balance by the credit used in a period.
// The balance only ever decreases; negative credits are rejected.
func (s *Store) DebitAdvance(ctx context.Context, contractID string, credit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return debitAdvance(ctx, s.db, contractID, credit)
}

func debitAdvance(ctx context.Context, db dbtx, contractID string, credit decimal.Decimal) error {
	if credit.IsNegative() {
		return fmt.Errorf("advance credit must not be negative: %s", credit)
	}
	if credit.IsZero() {
		return nil
	}

	advance, err := getAdvance(ctx, db, contractID)
	if err != nil {
		return err
	}
	if advance == nil {
		return fmt.Errorf("no advance recorded for contract %s", contractID)
	}
	if credit.GreaterThan(advance.Remaining) {
		return fmt.Errorf("advance credit %s exceeds remaining balance %s", credit, advance.Remaining)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE advance_payments SET remaining = ?, updated_at = ? WHERE contract_id = ?`,
		advance.Remaining.Sub(credit).String(),
		time.Now().UTC().Format(time.RFC3339), contractID)
	return err
}

func getAdvance(ctx context.Context, db dbtx, contractID string) (*Advance, error) {
	row := db.QueryRowContext(ctx,
		`SELECT contract_id, amount, remaining, updated_at FROM advance_payments WHERE contract_id = ?`,
		contractID)

	var a Advance
	var amount, remaining, updatedAt string
	err := row.Scan(&a.ContractID, &amount, &remaining, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if a.Remaining, err = decimal.NewFromString(remaining); err != nil {
		return nil, err
	}
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
