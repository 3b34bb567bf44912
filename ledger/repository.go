package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/alovak/cardledger/ledger/models"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicateKey     = fmt.Errorf("duplicate card number")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
)

// Dialect selects the SQL flavour of a db-backed repository.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var schema = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS card(
            id INTEGER PRIMARY KEY,
            number TEXT NOT NULL,
            pin TEXT NOT NULL,
            balance INTEGER NOT NULL DEFAULT 0)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS card_number_key ON card(number)`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS card(
            id BIGSERIAL PRIMARY KEY,
            number TEXT NOT NULL,
            pin TEXT NOT NULL,
            balance BIGINT NOT NULL DEFAULT 0)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS card_number_key ON card(number)`,
	},
}

// Repository is the AccountStore. With a nil db it keeps accounts in memory.
type Repository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account

	db      *sql.DB
	dialect Dialect
}

func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[string]models.Account),
	}
}

// NewSQLRepository constructs a db-backed repository. Call EnsureSchema before use.
func NewSQLRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect}
}

// EnsureSchema creates the card table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	stmts, ok := schema[r.dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("creating schema", err)
		}
	}
	return nil
}

func (r *Repository) Lookup(ctx context.Context, number, pin string) (models.Account, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		acc, ok := r.accounts[number]
		if !ok || acc.Card.PIN != pin {
			return models.Account{}, ErrNotFound
		}
		return acc, nil
	}
	row := r.db.QueryRowContext(ctx, r.rebind(`SELECT number, pin, balance FROM card WHERE number = ? AND pin = ?`), number, pin)
	var acc models.Account
	if err := row.Scan(&acc.Card.Number, &acc.Card.PIN, &acc.Balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, unavailable("looking up account", err)
	}
	return acc, nil
}

func (r *Repository) Exists(ctx context.Context, number string) (bool, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.accounts[number]
		return ok, nil
	}
	var found string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT number FROM card WHERE number = ?`), number).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("checking card", err)
	}
	return true, nil
}

func (r *Repository) Insert(ctx context.Context, acc models.Account) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.accounts[acc.Card.Number]; ok {
			return ErrDuplicateKey
		}
		r.accounts[acc.Card.Number] = acc
		return nil
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO card (number, pin, balance) VALUES (?, ?, ?)`),
		acc.Card.Number, acc.Card.PIN, acc.Balance)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return unavailable("inserting account", err)
	}
	return nil
}

// AdjustBalance adds delta to the balance of number. A missing row is ErrNotFound and
// a result outside int64 is models.ErrBalanceOverflow.
func (r *Repository) AdjustBalance(ctx context.Context, number string, delta int64) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		acc, ok := r.accounts[number]
		if !ok {
			return ErrNotFound
		}
		if !fits(acc.Balance, delta) {
			return models.ErrBalanceOverflow
		}
		acc.Balance += delta
		r.accounts[number] = acc
		return nil
	}
	lo, hi := bounds(delta)
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE card SET balance = balance + ? WHERE number = ? AND balance BETWEEN ? AND ?`),
		delta, number, lo, hi)
	if err != nil {
		return unavailable("adjusting balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("adjusting balance", err)
	}
	if n == 0 {
		return r.whyUnchanged(ctx, r.db, number, ErrNotFound)
	}
	return nil
}

// Transfer credits to and debits from in one transaction. The credit only applies
// while the recipient can hold amount and the debit only while the sender still holds
// it, otherwise nothing is written.
func (r *Repository) Transfer(ctx context.Context, from, to string, amount int64) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		recipient, ok := r.accounts[to]
		if !ok {
			return models.ErrUnknownRecipient
		}
		if !fits(recipient.Balance, amount) {
			return models.ErrBalanceOverflow
		}
		sender, ok := r.accounts[from]
		if !ok {
			return ErrNotFound
		}
		if sender.Balance < amount {
			return models.ErrInsufficientFunds
		}
		recipient.Balance += amount
		sender.Balance -= amount
		r.accounts[to] = recipient
		r.accounts[from] = sender
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning transfer", err)
	}
	defer tx.Rollback()

	lo, hi := bounds(amount)
	res, err := tx.ExecContext(ctx, r.rebind(`UPDATE card SET balance = balance + ? WHERE number = ? AND balance BETWEEN ? AND ?`),
		amount, to, lo, hi)
	if err != nil {
		return unavailable("crediting recipient", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("crediting recipient", err)
	}
	if n == 0 {
		return r.whyUnchanged(ctx, tx, to, models.ErrUnknownRecipient)
	}

	res, err = tx.ExecContext(ctx, r.rebind(`UPDATE card SET balance = balance - ? WHERE number = ? AND balance >= ?`), amount, from, amount)
	if err != nil {
		return unavailable("debiting sender", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return unavailable("debiting sender", err)
	}
	if n == 0 {
		var balance int64
		err := tx.QueryRowContext(ctx, r.rebind(`SELECT balance FROM card WHERE number = ?`), from).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return unavailable("reading sender", err)
		}
		return models.ErrInsufficientFunds
	}

	if err := tx.Commit(); err != nil {
		return unavailable("committing transfer", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// whyUnchanged explains a guarded UPDATE that touched no row: missing when the card
// is absent, otherwise the balance guard failed.
func (r *Repository) whyUnchanged(ctx context.Context, q querier, number string, missing error) error {
	var found string
	err := q.QueryRowContext(ctx, r.rebind(`SELECT number FROM card WHERE number = ?`), number).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return missing
	}
	if err != nil {
		return unavailable("reading card", err)
	}
	return models.ErrBalanceOverflow
}

// fits reports whether balance+delta stays within int64.
func fits(balance, delta int64) bool {
	if delta > 0 {
		return balance <= math.MaxInt64-delta
	}
	return balance >= math.MinInt64-delta
}

// bounds is the balance range for which balance+delta stays within int64.
func bounds(delta int64) (lo, hi int64) {
	if delta > 0 {
		return math.MinInt64, math.MaxInt64 - delta
	}
	return math.MinInt64 - delta, math.MaxInt64
}

func (r *Repository) Remove(ctx context.Context, number string) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.accounts, number)
		return nil
	}
	if _, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM card WHERE number = ?`), number); err != nil {
		return unavailable("removing account", err)
	}
	return nil
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		// primary result code only
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
