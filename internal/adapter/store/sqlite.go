package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forward-elements/internal/domain"
)

// SQLite backs the three record stores with a single sqlite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and runs the schema
// migration.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open elements db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate elements db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payment_sessions (
			id           TEXT PRIMARY KEY,
			amount       INTEGER NOT NULL,
			currency     TEXT NOT NULL,
			methods      TEXT NOT NULL DEFAULT '[]',
			reference_id TEXT NOT NULL DEFAULT '',
			metadata     TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payment_methods (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			method      TEXT NOT NULL,
			card_number TEXT NOT NULL,
			card_expiry TEXT NOT NULL,
			card_cvv    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payments (
			id                        TEXT PRIMARY KEY,
			method                    TEXT NOT NULL,
			method_id                 TEXT NOT NULL,
			amount                    INTEGER NOT NULL,
			currency                  TEXT NOT NULL,
			status                    TEXT NOT NULL,
			payor_first_name          TEXT NOT NULL DEFAULT '',
			payor_last_name           TEXT NOT NULL DEFAULT '',
			payor_email               TEXT NOT NULL DEFAULT '',
			payor_phone               TEXT NOT NULL DEFAULT '',
			payor_address_line1       TEXT NOT NULL DEFAULT '',
			payor_address_line2       TEXT NOT NULL DEFAULT '',
			payor_address_city        TEXT NOT NULL DEFAULT '',
			payor_address_state       TEXT NOT NULL DEFAULT '',
			payor_address_postal_code TEXT NOT NULL DEFAULT '',
			payor_address_country     TEXT NOT NULL DEFAULT '',
			reference_id              TEXT NOT NULL DEFAULT '',
			metadata                  TEXT NOT NULL DEFAULT '{}',
			created_at                TEXT NOT NULL,
			updated_at                TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

// Stores bundles the sqlite store behind the domain interfaces.
func (s *SQLite) Stores() domain.Stores {
	return domain.Stores{
		Sessions: &sqliteSessions{db: s.db},
		Methods:  &sqliteMethods{db: s.db},
		Payments: &sqlitePayments{db: s.db},
	}
}

func marshalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

type sqliteSessions struct{ db *sql.DB }

func (s *sqliteSessions) Create(ctx context.Context, rec domain.PaymentSession) (domain.PaymentSession, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_sessions (id, amount, currency, methods, reference_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Amount, rec.Currency, marshalJSON(rec.Methods), rec.ReferenceID, marshalJSON(rec.Metadata),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

func (s *sqliteSessions) GetByID(ctx context.Context, id string) (domain.PaymentSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, amount, currency, methods, reference_id, metadata, created_at, updated_at
		 FROM payment_sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *sqliteSessions) Update(ctx context.Context, rec domain.PaymentSession) (domain.PaymentSession, error) {
	rec.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_sessions SET amount = ?, currency = ?, methods = ?, reference_id = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		rec.Amount, rec.Currency, marshalJSON(rec.Methods), rec.ReferenceID, marshalJSON(rec.Metadata),
		rec.UpdatedAt.Format(time.RFC3339Nano), rec.ID,
	)
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	return rec, nil
}

func (s *sqliteSessions) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payment_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *sqliteSessions) List(ctx context.Context) ([]domain.PaymentSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, amount, currency, methods, reference_id, metadata, created_at, updated_at
		 FROM payment_sessions`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []domain.PaymentSession
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.PaymentSession, error) {
	var rec domain.PaymentSession
	var methods, metadata, created, updated string
	err := row.Scan(&rec.ID, &rec.Amount, &rec.Currency, &methods, &rec.ReferenceID, &metadata, &created, &updated)
	if err == sql.ErrNoRows {
		return domain.PaymentSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("scan session: %w", err)
	}
	json.Unmarshal([]byte(methods), &rec.Methods)
	json.Unmarshal([]byte(metadata), &rec.Metadata)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

type sqliteMethods struct{ db *sql.DB }

func (s *sqliteMethods) Create(ctx context.Context, rec domain.CardPaymentMethod) (domain.CardPaymentMethod, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payment_methods (id, session_id, method, card_number, card_expiry, card_cvv, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, string(rec.Method), rec.CardNumber, rec.CardExpiry, rec.CardCVV,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.CardPaymentMethod{}, fmt.Errorf("insert method: %w", err)
	}
	return rec, nil
}

func (s *sqliteMethods) GetByID(ctx context.Context, id string) (domain.CardPaymentMethod, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, method, card_number, card_expiry, card_cvv, created_at, updated_at
		 FROM payment_methods WHERE id = ?`, id)
	return scanMethod(row)
}

func (s *sqliteMethods) Update(ctx context.Context, rec domain.CardPaymentMethod) (domain.CardPaymentMethod, error) {
	rec.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_methods SET session_id = ?, method = ?, card_number = ?, card_expiry = ?, card_cvv = ?, updated_at = ?
		 WHERE id = ?`,
		rec.SessionID, string(rec.Method), rec.CardNumber, rec.CardExpiry, rec.CardCVV,
		rec.UpdatedAt.Format(time.RFC3339Nano), rec.ID,
	)
	if err != nil {
		return domain.CardPaymentMethod{}, fmt.Errorf("update method: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.CardPaymentMethod{}, domain.ErrMethodNotFound
	}
	return rec, nil
}

func (s *sqliteMethods) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete method: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMethodNotFound
	}
	return nil
}

func (s *sqliteMethods) List(ctx context.Context) ([]domain.CardPaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, method, card_number, card_expiry, card_cvv, created_at, updated_at
		 FROM payment_methods`)
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	defer rows.Close()
	var out []domain.CardPaymentMethod
	for rows.Next() {
		rec, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanMethod(row rowScanner) (domain.CardPaymentMethod, error) {
	var rec domain.CardPaymentMethod
	var method, created, updated string
	err := row.Scan(&rec.ID, &rec.SessionID, &method, &rec.CardNumber, &rec.CardExpiry, &rec.CardCVV, &created, &updated)
	if err == sql.ErrNoRows {
		return domain.CardPaymentMethod{}, domain.ErrMethodNotFound
	}
	if err != nil {
		return domain.CardPaymentMethod{}, fmt.Errorf("scan method: %w", err)
	}
	rec.Method = domain.PaymentMethodKind(method)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

type sqlitePayments struct{ db *sql.DB }

func (s *sqlitePayments) Create(ctx context.Context, rec domain.Payment) (domain.Payment, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (
			id, method, method_id, amount, currency, status,
			payor_first_name, payor_last_name, payor_email, payor_phone,
			payor_address_line1, payor_address_line2, payor_address_city,
			payor_address_state, payor_address_postal_code, payor_address_country,
			reference_id, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Method), rec.MethodID, rec.Amount, rec.Currency, string(rec.Status),
		rec.PayorFirstName, rec.PayorLastName, rec.PayorEmail, rec.PayorPhone,
		rec.PayorAddressLine1, rec.PayorAddressLine2, rec.PayorAddressCity,
		rec.PayorAddressState, rec.PayorAddressPostalCode, rec.PayorAddressCountry,
		rec.ReferenceID, marshalJSON(rec.Metadata),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return rec, nil
}

func (s *sqlitePayments) GetByID(ctx context.Context, id string) (domain.Payment, error) {
	row := s.db.QueryRowContext(ctx, paymentSelect+` WHERE id = ?`, id)
	return scanPayment(row)
}

func (s *sqlitePayments) Update(ctx context.Context, rec domain.Payment) (domain.Payment, error) {
	rec.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		string(rec.Status), marshalJSON(rec.Metadata), rec.UpdatedAt.Format(time.RFC3339Nano), rec.ID,
	)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return rec, nil
}

func (s *sqlitePayments) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (s *sqlitePayments) List(ctx context.Context) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, paymentSelect)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []domain.Payment
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const paymentSelect = `SELECT
	id, method, method_id, amount, currency, status,
	payor_first_name, payor_last_name, payor_email, payor_phone,
	payor_address_line1, payor_address_line2, payor_address_city,
	payor_address_state, payor_address_postal_code, payor_address_country,
	reference_id, metadata, created_at, updated_at
FROM payments`

func scanPayment(row rowScanner) (domain.Payment, error) {
	var rec domain.Payment
	var method, status, metadata, created, updated string
	err := row.Scan(
		&rec.ID, &method, &rec.MethodID, &rec.Amount, &rec.Currency, &status,
		&rec.PayorFirstName, &rec.PayorLastName, &rec.PayorEmail, &rec.PayorPhone,
		&rec.PayorAddressLine1, &rec.PayorAddressLine2, &rec.PayorAddressCity,
		&rec.PayorAddressState, &rec.PayorAddressPostalCode, &rec.PayorAddressCountry,
		&rec.ReferenceID, &metadata, &created, &updated,
	)
	if err == sql.ErrNoRows {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	rec.Method = domain.PaymentMethodKind(method)
	rec.Status = domain.PaymentStatus(status)
	json.Unmarshal([]byte(metadata), &rec.Metadata)
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}
