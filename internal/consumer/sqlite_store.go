package consumer

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gadgethost/internal/oauth"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists registrations in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite consumer store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Put inserts or replaces the registration for (app, service, protocol).
func (s *SQLiteStore) Put(ctx context.Context, r Registration) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO consumers (
		   app_url, service, protocol,
		   consumer_key, consumer_secret, signature_method, callback_url,
		   client_id, client_secret, redirect_uri,
		   updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (app_url, service, protocol) DO UPDATE SET
		   consumer_key = excluded.consumer_key,
		   consumer_secret = excluded.consumer_secret,
		   signature_method = excluded.signature_method,
		   callback_url = excluded.callback_url,
		   client_id = excluded.client_id,
		   client_secret = excluded.client_secret,
		   redirect_uri = excluded.redirect_uri,
		   updated_at = excluded.updated_at`,
		r.AppURL, r.Service, oauth.ParseProtocol(r.Protocol).String(),
		r.ConsumerKey, r.ConsumerSecret, r.SignatureMethod, r.CallbackURL,
		r.ClientID, r.ClientSecret, r.RedirectURI,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put consumer: %w", err)
	}
	return nil
}

// Delete removes a registration. Deleting a missing row is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, appURL, service string, protocol oauth.ProtocolType) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM consumers WHERE app_url = ? AND service = ? AND protocol = ?`,
		appURL, service, protocol.String())
	if err != nil {
		return fmt.Errorf("delete consumer: %w", err)
	}
	return nil
}

// Consumer implements oauth.ConsumerStore.
func (s *SQLiteStore) Consumer(ctx context.Context, appURL, service string) (oauth.ConsumerCredential, error) {
	r, err := s.find(ctx, appURL, service, oauth.ProtocolOAuth1)
	if err != nil {
		return oauth.ConsumerCredential{}, err
	}
	return r.credential(), nil
}

// Consumer2 implements oauth.ConsumerStore.
func (s *SQLiteStore) Consumer2(ctx context.Context, appURL, service string) (oauth.Consumer2Credential, error) {
	r, err := s.find(ctx, appURL, service, oauth.ProtocolOAuth2)
	if err != nil {
		return oauth.Consumer2Credential{}, err
	}
	return r.credential2(), nil
}

// find prefers an exact app match over the AnyApp registration.
func (s *SQLiteStore) find(ctx context.Context, appURL, service string, p oauth.ProtocolType) (Registration, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM consumers
		 WHERE service = ? AND protocol = ? AND app_url IN (?, ?)
		 ORDER BY CASE WHEN app_url = ? THEN 0 ELSE 1 END
		 LIMIT 1`,
		service, p.String(), appURL, AnyApp, appURL)

	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, fmt.Errorf("%w: app=%s service=%s protocol=%s", oauth.ErrConsumerNotFound, appURL, service, p)
	}
	if err != nil {
		return Registration{}, fmt.Errorf("get consumer: %w", err)
	}
	return r, nil
}

// List returns all registrations ordered by app and service.
func (s *SQLiteStore) List(ctx context.Context) ([]Registration, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM consumers ORDER BY app_url, service, protocol`)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumer: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumers: %w", err)
	}
	return out, nil
}

const registrationColumns = `app_url, service, protocol,
	consumer_key, consumer_secret, signature_method, callback_url,
	client_id, client_secret, redirect_uri`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (Registration, error) {
	var r Registration
	err := row.Scan(
		&r.AppURL, &r.Service, &r.Protocol,
		&r.ConsumerKey, &r.ConsumerSecret, &r.SignatureMethod, &r.CallbackURL,
		&r.ClientID, &r.ClientSecret, &r.RedirectURI,
	)
	return r, err
}
