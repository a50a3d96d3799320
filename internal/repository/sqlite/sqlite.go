// Package sqlite persists engine entities as JSON documents in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/iwvelando/loan-engine/internal/repository"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var (
	_ repository.Repository[domain.LoanAccount]           = (*Table[domain.LoanAccount])(nil)
	_ repository.Repository[domain.CreditCardTransaction] = (*Table[domain.CreditCardTransaction])(nil)
)

// DB owns the database handle shared by every Table.
type DB struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open creates the database file if needed, applies migrations and returns
// a ready handle.
func Open(ctx context.Context, dbPath string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the engine already serializes per account.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("opened sqlite storage",
		zap.String("op", "sqlite.Open"),
		zap.String("path", dbPath),
	)
	return &DB{db: db, path: dbPath, logger: logger}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Set returns a repository.Set whose tables share this handle.
func (d *DB) Set() *repository.Set {
	return &repository.Set{
		Loans:             NewTable[domain.LoanAccount](d, "loans", "loan"),
		LoanPayments:      NewTable[domain.LoanPayment](d, "loan_payments", "loan payment"),
		Cards:             NewTable[domain.CreditCard](d, "credit_cards", "credit card"),
		CardTransactions:  NewTable[domain.CreditCardTransaction](d, "card_transactions", "card transaction"),
		StatementPayments: NewTable[domain.StatementPayment](d, "statement_payments", "statement payment"),
	}
}

// Table stores one entity type. Indexed columns mirror the Entity methods;
// the full value lives in the doc column.
type Table[T repository.Entity] struct {
	db   *DB
	name string
	kind string
}

// NewTable binds an entity type to a migrated table. name must be one of the
// tables created by the embedded migrations.
func NewTable[T repository.Entity](db *DB, name, kind string) *Table[T] {
	return &Table[T]{db: db, name: name, kind: kind}
}

func (t *Table[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T
	var doc string
	err := t.db.db.QueryRowContext(ctx,
		"SELECT doc FROM "+t.name+" WHERE id = ?", id.String(),
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return zero, fmt.Errorf("%w: %s %s", repository.ErrNotFound, t.kind, id)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", t.kind, id, err)
	}
	return t.decode(doc)
}

func (t *Table[T]) Create(ctx context.Context, entity T) error {
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.kind, err)
	}

	res, err := t.db.db.ExecContext(ctx,
		"INSERT INTO "+t.name+" (id, owner_id, occurred_at, doc) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
		entity.EntityID().String(), entity.OwnerID().String(), entity.OccurredAt().UnixNano(), string(doc),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", repository.ErrDuplicate, t.kind, entity.EntityID())
	}

	t.db.logger.Debug("stored entity",
		zap.String("op", "sqlite.Create"),
		zap.String("table", t.name),
		zap.String("id", entity.EntityID().String()),
	)
	return nil
}

func (t *Table[T]) Update(ctx context.Context, entity T) error {
	doc, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.kind, err)
	}

	id := entity.EntityID()
	res, err := t.db.db.ExecContext(ctx,
		"UPDATE "+t.name+" SET occurred_at = ?, doc = ? WHERE id = ? AND owner_id = ?",
		entity.OccurredAt().UnixNano(), string(doc), id.String(), entity.OwnerID().String(),
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", t.kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", t.kind, id, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := t.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%s %s cannot change owner", t.kind, id)
}

func (t *Table[T]) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := t.db.db.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t.kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t.kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", repository.ErrNotFound, t.kind, id)
	}

	t.db.logger.Debug("deleted entity",
		zap.String("op", "sqlite.Delete"),
		zap.String("table", t.name),
		zap.String("id", id.String()),
	)
	return nil
}

func (t *Table[T]) List(ctx context.Context, q repository.Query) ([]T, error) {
	query := "SELECT doc FROM " + t.name
	var args []any
	if q.OwnerID != uuid.Nil {
		query += " WHERE owner_id = ?"
		args = append(args, q.OwnerID.String())
	}
	query += " ORDER BY occurred_at, id"

	rows, err := t.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.kind, err)
	}
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.kind, err)
		}
		entity, err := t.decode(doc)
		if err != nil {
			return nil, err
		}
		if q.Matches(entity) {
			result = append(result, entity)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", t.kind, err)
	}

	repository.Sort(result)
	return result, nil
}

func (t *Table[T]) decode(doc string) (T, error) {
	var entity T
	if err := json.Unmarshal([]byte(doc), &entity); err != nil {
		return entity, fmt.Errorf("decode %s: %w", t.kind, err)
	}
	return entity, nil
}
