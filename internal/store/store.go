package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate")
	ErrReferenced = errors.New("referenced by other records")
)

// ConstraintError is a unique or foreign key violation.
type ConstraintError struct {
	Err        error
	Table      string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Constraint)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// namedGet runs a query with :name parameters and scans one row into dest.
func namedGet(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, arg interface{}) error {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return err
	}
	return translate(sqlx.GetContext(ctx, q, dest, q.Rebind(bound), args...))
}

// namedExec runs a statement with :name parameters and reports the number
// of affected rows.
func namedExec(ctx context.Context, q sqlx.ExtContext, query string, arg interface{}) (int64, error) {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, q.Rebind(bound), args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &ConstraintError{Err: ErrDuplicate, Table: pqErr.Table, Constraint: pqErr.Constraint}
		case "23503":
			return &ConstraintError{Err: ErrReferenced, Table: pqErr.Table, Constraint: pqErr.Constraint}
		}
	}
	return err
}

func requireAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOptions carries the search and ordering query parameters of a list
// endpoint.
type ListOptions struct {
	Search   string
	Ordering string
}

// listQuery describes how a list endpoint may be searched and ordered.
type listQuery struct {
	searchCols   []string
	orderCols    map[string]string
	defaultOrder string
}

// apply appends the search filter and ORDER BY clause to a query that
// already has a WHERE clause.
func (l listQuery) apply(query string, args []interface{}, opts ListOptions) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(query)

	if term := strings.TrimSpace(opts.Search); term != "" && len(l.searchCols) > 0 {
		args = append(args, "%"+term+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		conds := make([]string, len(l.searchCols))
		for i, col := range l.searchCols {
			conds[i] = col + " ILIKE " + placeholder
		}
		sb.WriteString(" AND (" + strings.Join(conds, " OR ") + ")")
	}

	sb.WriteString(" ORDER BY " + l.orderBy(opts.Ordering))
	return sb.String(), args
}

func (l listQuery) orderBy(ordering string) string {
	var parts []string
	for _, field := range strings.Split(ordering, ",") {
		field = strings.TrimSpace(field)
		dir := "ASC"
		if strings.HasPrefix(field, "-") {
			dir = "DESC"
			field = field[1:]
		}
		if col, ok := l.orderCols[field]; ok {
			parts = append(parts, col+" "+dir)
		}
	}
	if len(parts) == 0 {
		return l.defaultOrder
	}
	return strings.Join(parts, ", ")
}
