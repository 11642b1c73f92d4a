package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("store is closed")

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// The database is opened, and the schema created, on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	// the schema must exist before a read-only connection can see it
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, flightID string, config any) (sessionID int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	configData, err := configString(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, flightID, time.Now().UTC(), configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.FlightID, &sess.StartTime, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sess.Config = fromNull(config.String, config.Valid)
		sessions = append(sessions, &sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreReadings(ctx context.Context, sessionID int64, timestamp time.Time, readings []Reading) (err error) {
	if len(readings) == 0 {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	ts := timestamp.UTC()
	for _, r := range readings {
		if _, err = stmt.ExecContext(ctx, sessionID, ts, r.Sensor, r.Field, toNullFloat(r.Value), toNullString(r.Raw)); err != nil {
			return fmt.Errorf("inserting reading: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) Readings(ctx context.Context, sessionID int64, sensor string) (records []*Record, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectReadingsSQL, sessionID, sensor, sensor)
	if err != nil {
		err = fmt.Errorf("querying readings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			rec   Record
			value sql.NullFloat64
			raw   sql.NullString
		)
		if err = rows.Scan(&rec.ID, &rec.SessionID, &rec.Timestamp, &rec.Sensor, &rec.Field, &value, &raw); err != nil {
			err = fmt.Errorf("scanning reading: %w", err)
			return
		}
		rec.Value = fromNull(value.Float64, value.Valid)
		rec.Raw = fromNull(raw.String, raw.Valid)
		records = append(records, &rec)
	}
	err = rows.Err()
	return
}

// Close closes the database connections
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true

		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

var _ Store = (*SqliteStore)(nil)
