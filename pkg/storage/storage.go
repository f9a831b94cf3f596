// Package storage persists measurements to a SQL database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ericogr/home-env-log/pkg/sensor"
)

// ErrStorage wraps every failure reported by this package.
var ErrStorage = errors.New("storage")

// Storage receives one measurement per successful acquisition cycle.
type Storage interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, m sensor.Measurement) error
	Close() error
}

// Dialect holds the statements of one database/sql driver. The insert
// statement takes timestamp, temperature, humidity, pressure and CO2 in that
// order.
type Dialect interface {
	CreateTable() string
	Insert() string
}

var (
	mu       sync.RWMutex
	dialects = make(map[string]Dialect)
)

// RegisterDialect makes a dialect available to Open under the database/sql
// driver name.
func RegisterDialect(driver string, d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	dialects[driver] = d
}

// Dialects returns the sorted names of the registered dialects.
func Dialects() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(driver string) (Dialect, error) {
	mu.RLock()
	d, ok := dialects[driver]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown driver %q (available: %s)", ErrStorage, driver, strings.Join(Dialects(), ", "))
	}
	return d, nil
}

// DB is a Storage backed by database/sql.
type DB struct {
	db      *sql.DB
	driver  string
	dialect Dialect
}

// Open opens dsn with the named driver. The schema is created by Init.
func Open(driver, dsn string) (*DB, error) {
	d, err := lookup(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStorage, driver, err)
	}
	return &DB{db: db, driver: driver, dialect: d}, nil
}

// New wraps an already open handle.
func New(db *sql.DB, driver string) (*DB, error) {
	d, err := lookup(driver)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, driver: driver, dialect: d}, nil
}

// Init creates the measurements table if it does not exist yet.
func (s *DB) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable()); err != nil {
		return fmt.Errorf("%w: create table: %w", ErrStorage, err)
	}
	return nil
}

// Insert appends m as a new row. The timestamp is stored as RFC3339 text
// with fractional seconds when it has any.
func (s *DB) Insert(ctx context.Context, m sensor.Measurement) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Insert(),
		m.Timestamp.Format(time.RFC3339Nano),
		m.Temperature,
		m.Humidity,
		m.Pressure,
		int64(m.CO2),
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %w", ErrStorage, err)
	}
	return nil
}

func (s *DB) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	return nil
}

func (s *DB) String() string {
	return "storage: " + s.driver
}
