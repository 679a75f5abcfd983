package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v5/stdlib"

	"eld-planner/internal/logger"
)

// ErrNotFound is returned when a trip plan does not exist.
var ErrNotFound = errors.New("not found")

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// OpenWithRetry opens the pool and pings it until it answers or attempts run out.
func OpenWithRetry(ctx context.Context, dsn string, attempts uint, lggr logger.Logger) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = retry.Do(func() error {
		return Ping(ctx, db)
	},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			lggr.Warnf("database ping attempt %d/%d: %v", attempt+1, attempts, err)
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Store persists trip plans and the duty events they produce. Daily logs are
// not stored; they are rebuilt from events in the store's home time zone.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

func NewStore(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

func (s *Store) Ping(ctx context.Context) error { return Ping(ctx, s.db) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Location() *time.Location { return s.loc }
