// Package store provides storage backends for the booking archive.
//
// Finished sessions are summarized and saved so past reservations can be
// reviewed later. SQLite is the default backend; PostgreSQL is available for
// shared deployments. An in-memory store backs tests and archive-less runs.
package store

import (
	"strings"

	"github.com/tablevoice/tablevoice/internal/models"
)

// Store is the booking archive interface.
type Store interface {
	SaveBooking(record models.BookingRecord) error
	ListBookings() ([]models.BookingRecord, error)
	Close() error
}

// Opts holds store configuration options.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL-style DSNs and "sqlite3"
// otherwise. A plain file path is treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a simple in-memory booking archive.
type InMemoryStore struct {
	bookings []models.BookingRecord
	nextID   int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) SaveBooking(record models.BookingRecord) error {
	record.ID = s.nextID
	s.nextID++
	s.bookings = append(s.bookings, record)
	return nil
}

func (s *InMemoryStore) ListBookings() ([]models.BookingRecord, error) {
	out := make([]models.BookingRecord, len(s.bookings))
	copy(out, s.bookings)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
