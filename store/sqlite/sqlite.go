/*
Package sqlite provides a SQLite-backed payout.Source.

PURPOSE:
  Reads the legacy incentive tables and hands every row to the factory
  package for canonicalization. The schema keeps the historical table and
  column names so dumps from the old system load unchanged.

INTERFACES IMPLEMENTED:
  payout.Source:       Activity, aliases, schedule, contracts, payroll, rules
  payout.PeriodLister: Periods with activity per contract

KEY TABLES:
  usuarios_tiktok:          Per-streamer activity (one row per contract+period)
  historico_usuarios:       Name snapshots, up to three slots per row
  incentivos_horizontales:  Cumulative incentive schedule
  contratos:                Per-contract flags (nivel1_tabla3)
  reportes_contratos:       Payroll gross figures
  config_columnas_ocultas:  Visibility rules

LOOSE TYPING:
  Numeric columns are declared NUMERIC and dates TEXT. Legacy rows carry
  "NaN", blanks and comma decimals; those are stored as-is and coerced by
  factory on the way out. Date columns are never declared DATE so the
  driver does not attempt its own time parsing.

ERRORS:
  Driver failures wrap payout.ErrTransient. A missing contract row is
  payout.ErrContractNotFound.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; writes are seed-only.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so report reads do not
  block a concurrent seed.

USAGE:
  store, err := sqlite.New("./data/incentives.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  builder := payout.NewBuilder(store, logger)

SEE ALSO:
  - payout/store.go: Interface definitions
  - factory/records.go: Column variants per table
  - payout/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/payout"
)

// Store implements payout.Source using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ payout.Source = (*Store)(nil)
var _ payout.PeriodLister = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
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

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// tables lists every table the store owns, in migration order.
var tables = []string{
	"usuarios_tiktok",
	"historico_usuarios",
	"incentivos_horizontales",
	"contratos",
	"reportes_contratos",
	"config_columnas_ocultas",
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Activity
	CREATE TABLE IF NOT EXISTS usuarios_tiktok (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		id_tiktok TEXT NOT NULL,
		usuario TEXT,
		agencia TEXT,
		contrato TEXT NOT NULL,
		fecha_datos TEXT NOT NULL,
		dias NUMERIC,
		duracion NUMERIC,
		diamantes NUMERIC
	);

	CREATE INDEX IF NOT EXISTS idx_usuarios_contrato_fecha
		ON usuarios_tiktok(contrato, fecha_datos);

	-- Name history
	CREATE TABLE IF NOT EXISTS historico_usuarios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		id_tiktok TEXT NOT NULL,
		usuario_1 TEXT,
		usuario_2 TEXT,
		usuario_3 TEXT,
		visto_ultima_vez TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_historico_id
		ON historico_usuarios(id_tiktok);

	-- Incentive schedule
	CREATE TABLE IF NOT EXISTS incentivos_horizontales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		acumulado NUMERIC NOT NULL,
		nivel_1_monedas NUMERIC,
		nivel_1_paypal TEXT,
		nivel_2_monedas NUMERIC,
		nivel_2_paypal TEXT,
		nivel_3_monedas NUMERIC,
		nivel_3_paypal TEXT
	);

	-- Contract flags
	CREATE TABLE IF NOT EXISTS contratos (
		codigo TEXT PRIMARY KEY,
		nivel1_tabla3 TEXT
	);

	-- Payroll
	CREATE TABLE IF NOT EXISTS reportes_contratos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		usuario_id TEXT NOT NULL,
		contrato TEXT NOT NULL,
		periodo TEXT NOT NULL,
		paypal_bruto TEXT,
		coins_bruto TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reportes_contrato_periodo
		ON reportes_contratos(contrato, periodo);

	-- Visibility rules
	CREATE TABLE IF NOT EXISTS config_columnas_ocultas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contrato TEXT,
		columna TEXT NOT NULL,
		audiencia TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// payout.Source
// =============================================================================

// FetchActivityRecords returns the activity rows of one contract+period.
func (s *Store) FetchActivityRecords(ctx context.Context, contract string, period payout.Period) ([]payout.StreamerPeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := periodBounds(period)
	rows, err := s.queryRows(ctx, `
		SELECT * FROM usuarios_tiktok
		WHERE TRIM(contrato) = ? AND fecha_datos >= ? AND fecha_datos < ?
		ORDER BY id ASC
	`, strings.TrimSpace(contract), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}

	out := make([]payout.StreamerPeriodRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, factory.ActivityRecord(r, contract, period))
	}
	return out, nil
}

// FetchAliases returns every name snapshot for the given ids. The caller
// bounds the batch size.
func (s *Store) FetchAliases(ctx context.Context, platformIDs []string) ([]payout.HistoricalAlias, error) {
	if len(platformIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(platformIDs)), ",")
	args := make([]any, len(platformIDs))
	for i, id := range platformIDs {
		args[i] = id
	}

	rows, err := s.queryRows(ctx,
		"SELECT * FROM historico_usuarios WHERE id_tiktok IN ("+placeholders+") ORDER BY id ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}

	out := make([]payout.HistoricalAlias, 0, len(rows))
	for _, r := range rows {
		out = append(out, factory.Alias(r))
	}
	return out, nil
}

// FetchIncentiveSchedule returns the schedule ascending by threshold.
func (s *Store) FetchIncentiveSchedule(ctx context.Context) ([]payout.IncentiveScheduleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryRows(ctx, "SELECT * FROM incentivos_horizontales ORDER BY acumulado ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	out := make([]payout.IncentiveScheduleRow, 0, len(rows))
	for _, r := range rows {
		row, err := factory.ScheduleRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// FetchContractConfig returns the flags of one contract.
func (s *Store) FetchContractConfig(ctx context.Context, contract string) (payout.ContractConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryRows(ctx, "SELECT * FROM contratos WHERE TRIM(codigo) = ? LIMIT 1", strings.TrimSpace(contract))
	if err != nil {
		return payout.ContractConfig{}, fmt.Errorf("failed to query contract: %w", err)
	}
	if len(rows) == 0 {
		return payout.ContractConfig{}, payout.ErrContractNotFound
	}
	return factory.ContractConfig(rows[0]), nil
}

// FetchPayroll returns the payroll rows of one contract+period.
func (s *Store) FetchPayroll(ctx context.Context, contract string, period payout.Period) ([]payout.PayrollReportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to := periodBounds(period)
	rows, err := s.queryRows(ctx, `
		SELECT * FROM reportes_contratos
		WHERE TRIM(contrato) = ? AND periodo >= ? AND periodo < ?
		ORDER BY id ASC
	`, strings.TrimSpace(contract), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll: %w", err)
	}

	out := make([]payout.PayrollReportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, factory.PayrollRow(r))
	}
	return out, nil
}

// FetchVisibilityRules returns every rule. Rows without a column token are
// skipped.
func (s *Store) FetchVisibilityRules(ctx context.Context) ([]payout.VisibilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryRows(ctx, "SELECT * FROM config_columnas_ocultas ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query visibility rules: %w", err)
	}

	out := make([]payout.VisibilityRule, 0, len(rows))
	for _, r := range rows {
		if rule, ok := factory.VisibilityRule(r); ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

// ListPeriods returns the months with activity for contract, newest first.
func (s *Store) ListPeriods(ctx context.Context, contract string) ([]payout.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT substr(TRIM(fecha_datos), 1, 7) AS mes
		FROM usuarios_tiktok
		WHERE TRIM(contrato) = ?
		ORDER BY mes DESC
	`, strings.TrimSpace(contract))
	if err != nil {
		return nil, transient("list periods", err)
	}
	defer rows.Close()

	var out []payout.Period
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, transient("list periods", err)
		}
		p, err := payout.ParsePeriod(month)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("list periods", err)
	}
	return out, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// SaveActivity inserts activity records.
func (s *Store) SaveActivity(ctx context.Context, records ...payout.StreamerPeriodRecord) error {
	return s.insertEach(ctx, len(records), func(tx *sql.Tx, i int) error {
		r := records[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO usuarios_tiktok (id_tiktok, usuario, agencia, contrato, fecha_datos, dias, duracion, diamantes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.PlatformID, nullString(r.DisplayName), nullString(r.Agency), r.ContractCode,
			r.Period.String(), r.DaysActive, r.HoursActive, r.Diamonds)
		return err
	})
}

// SaveAliases inserts name snapshots.
func (s *Store) SaveAliases(ctx context.Context, aliases ...payout.HistoricalAlias) error {
	return s.insertEach(ctx, len(aliases), func(tx *sql.Tx, i int) error {
		a := aliases[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO historico_usuarios (id_tiktok, usuario_1, usuario_2, usuario_3, visto_ultima_vez)
			VALUES (?, ?, ?, ?, ?)
		`, a.PlatformID, nullString(a.Names[0]), nullString(a.Names[1]), nullString(a.Names[2]),
			a.LastSeen.UTC().Format(time.RFC3339))
		return err
	})
}

// SaveSchedule replaces the incentive schedule.
func (s *Store) SaveSchedule(ctx context.Context, rows ...payout.IncentiveScheduleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM incentivos_horizontales"); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	for _, r := range rows {
		t1, t2, t3 := r.Reward(payout.Tier1), r.Reward(payout.Tier2), r.Reward(payout.Tier3)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO incentivos_horizontales
			(acumulado, nivel_1_monedas, nivel_1_paypal, nivel_2_monedas, nivel_2_paypal, nivel_3_monedas, nivel_3_paypal)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.Threshold, t1.Units, t1.Cash.String(), t2.Units, t2.Cash.String(), t3.Units, t3.Cash.String())
		if err != nil {
			return fmt.Errorf("failed to insert schedule row: %w", err)
		}
	}
	return tx.Commit()
}

// SaveContract upserts a contract's flags.
func (s *Store) SaveContract(ctx context.Context, cfg payout.ContractConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag := "NO"
	if cfg.CollapseLowTiers {
		flag = "SI"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contratos (codigo, nivel1_tabla3) VALUES (?, ?)
		ON CONFLICT(codigo) DO UPDATE SET nivel1_tabla3 = excluded.nivel1_tabla3
	`, cfg.Code, flag)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// SavePayroll inserts payroll rows.
func (s *Store) SavePayroll(ctx context.Context, rows ...payout.PayrollReportRow) error {
	return s.insertEach(ctx, len(rows), func(tx *sql.Tx, i int) error {
		r := rows[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reportes_contratos (usuario_id, contrato, periodo, paypal_bruto, coins_bruto)
			VALUES (?, ?, ?, ?, ?)
		`, r.PlatformID, r.ContractCode, r.Period.String(), r.GrossPay.String(), r.GrossCoins.String())
		return err
	})
}

// SaveRules inserts visibility rules.
func (s *Store) SaveRules(ctx context.Context, rules ...payout.VisibilityRule) error {
	return s.insertEach(ctx, len(rules), func(tx *sql.Tx, i int) error {
		r := rules[i]
		_, err := tx.ExecContext(ctx,
			"INSERT INTO config_columnas_ocultas (contrato, columna, audiencia) VALUES (?, ?, ?)",
			nullString(r.Contract), r.FieldToken, nullString(r.Audience))
		return err
	})
}

var identifier = regexp.MustCompile(`^[a-z0-9_]+$`)

// InsertRows loads raw rows into one of the store's tables. Column names
// must exist in the table; values are stored untouched.
func (s *Store) InsertRows(ctx context.Context, table string, rows []factory.Row) error {
	if !isTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	columns, err := s.columns(ctx, table)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		names := make([]string, 0, len(row))
		args := make([]any, 0, len(row))
		for col, v := range row {
			col = strings.ToLower(strings.TrimSpace(col))
			if !identifier.MatchString(col) || !columns[col] {
				return fmt.Errorf("unknown column %q in table %s", col, table)
			}
			names = append(names, col)
			args = append(args, v)
		}
		if len(names) == 0 {
			continue
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table,
			strings.Join(names, ", "),
			strings.TrimSuffix(strings.Repeat("?,", len(names)), ","))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Reset clears all data (for testing and scenario loading).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) insertEach(ctx context.Context, n int, fn func(tx *sql.Tx, i int) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		if err := fn(tx, i); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// queryRows scans every column of every row into a factory.Row.
func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]factory.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient("query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, transient("columns", err)
	}

	var out []factory.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, transient("scan", err)
		}
		row := make(factory.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("rows", err)
	}
	return out, nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, transient("table info", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, transient("table info", err)
		}
		out[strings.ToLower(name)] = true
	}
	return out, rows.Err()
}

func isTable(name string) bool {
	for _, t := range tables {
		if t == name {
			return true
		}
	}
	return false
}

// periodBounds returns [start, next start) as comparable date strings.
func periodBounds(p payout.Period) (string, string) {
	return p.String(), p.Next().String()
}

func transient(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", payout.ErrTransient, op, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
