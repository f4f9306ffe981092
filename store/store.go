// Package store persists twins in SQLite as JSON documents. Each Save
// replaces the user's current document and appends an immutable snapshot.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/twin"
)

// Snapshot identifies one saved document.
type Snapshot struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TakenAt     time.Time `json:"taken_at"`
	ContentHash string    `json:"content_hash"`
}

// Stats summarises the store contents.
type Stats struct {
	Twins     int            `json:"twins"`
	Snapshots int            `json:"snapshots"`
	Versions  map[string]int `json:"versions"` // twins per document version
}

// TwinStore reads and writes twins.
type TwinStore struct {
	db       *sql.DB
	twinOpts []twin.Option
	now      func() time.Time
	newID    func() string
	log      *zap.SugaredLogger
}

// Option configures a TwinStore.
type Option func(*TwinStore)

// WithTwinOptions sets the options loaded twins are built with, such as a
// schema.
func WithTwinOptions(opts ...twin.Option) Option {
	return func(s *TwinStore) { s.twinOpts = append(s.twinOpts, opts...) }
}

// WithClock sets the snapshot clock.
func WithClock(now func() time.Time) Option {
	return func(s *TwinStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *TwinStore) { s.log = l }
}

// New returns a store over db. The schema must already be migrated.
func New(db *sql.DB, opts ...Option) *TwinStore {
	s := &TwinStore{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrComponent(s.log, logger.ComponentStore)
	return s
}

// Save writes t as the user's current document and records a snapshot. When
// the content equals the user's latest snapshot no new snapshot is recorded
// and the latest one is returned.
func (s *TwinStore) Save(ctx context.Context, t *twin.Twin) (Snapshot, error) {
	if t == nil {
		return Snapshot{}, errors.Wrap(errors.ErrInvalidRequest, "nil twin")
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "encode twin")
	}
	hash, err := ContentHash(t)
	if err != nil {
		return Snapshot{}, err
	}
	meta := t.Metadata()
	snap := Snapshot{ID: s.newID(), UserID: t.UserID(), TakenAt: s.now().UTC(), ContentHash: hash}
	log := logger.ChildLogger(s.log, logger.FieldUserID, snap.UserID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "begin save")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO twins (user_id, document, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			document = excluded.document,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		snap.UserID, string(doc), meta.Version, meta.CreatedAt, meta.UpdatedAt)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "upsert twin %s", snap.UserID)
	}

	var latest Snapshot
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, taken_at, content_hash FROM twin_snapshots
		WHERE user_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT 1`, snap.UserID).Scan(&latest.ID, &latest.UserID, &latest.TakenAt, &latest.ContentHash)
	switch {
	case err == nil && latest.ContentHash == hash:
		if err := tx.Commit(); err != nil {
			return Snapshot{}, errors.Wrap(err, "commit save")
		}
		latest.TakenAt = latest.TakenAt.UTC()
		log.Debugw("twin unchanged, snapshot reused", "snapshot_id", latest.ID)
		return latest, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return Snapshot{}, errors.Wrapf(err, "query latest snapshot of %s", snap.UserID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO twin_snapshots (id, user_id, document, taken_at, content_hash) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, string(doc), snap.TakenAt, snap.ContentHash)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "insert snapshot for %s", snap.UserID)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, errors.Wrap(err, "commit save")
	}

	log.Debugw("twin saved", "snapshot_id", snap.ID, logger.FieldVersion, meta.Version)
	return snap, nil
}

// Load returns the user's current twin. A missing user is ErrNotFound.
func (s *TwinStore) Load(ctx context.Context, userID string) (*twin.Twin, error) {
	var doc, version string
	err := s.db.QueryRowContext(ctx,
		`SELECT document, version FROM twins WHERE user_id = ?`, userID).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "twin %q", userID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query twin %s", userID)
	}
	if err := twin.CheckVersion(version); err != nil {
		return nil, errors.Wrapf(err, "twin %s", userID)
	}
	return s.decode(doc)
}

// LoadSnapshot returns the twin as it was saved in snapshot id.
func (s *TwinStore) LoadSnapshot(ctx context.Context, id string) (*twin.Twin, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM twin_snapshots WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "snapshot %q", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "query snapshot %s", id)
	}
	return s.decode(doc)
}

func (s *TwinStore) decode(doc string) (*twin.Twin, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidDataFormat, err.Error())
	}
	return twin.FromDict(data, s.twinOpts...)
}

// Delete removes the user's twin and every snapshot of it.
func (s *TwinStore) Delete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM twin_snapshots WHERE user_id = ?`, userID); err != nil {
		return errors.Wrapf(err, "delete snapshots of %s", userID)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM twins WHERE user_id = ?`, userID)
	if err != nil {
		return errors.Wrapf(err, "delete twin %s", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "twin %q", userID)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete")
	}
	s.log.Infow("twin deleted", logger.FieldUserID, userID)
	return nil
}

// ListUsers returns stored user ids in lexical order.
func (s *TwinStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM twins ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, id)
	}
	return users, errors.Wrap(rows.Err(), "iterate users")
}

// Snapshots lists the user's snapshots, oldest first.
func (s *TwinStore) Snapshots(ctx context.Context, userID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, taken_at, content_hash FROM twin_snapshots
		WHERE user_id = ?
		ORDER BY taken_at, rowid`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list snapshots of %s", userID)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.UserID, &snap.TakenAt, &snap.ContentHash); err != nil {
			return nil, errors.Wrap(err, "scan snapshot")
		}
		snap.TakenAt = snap.TakenAt.UTC()
		snaps = append(snaps, snap)
	}
	return snaps, errors.Wrap(rows.Err(), "iterate snapshots")
}

// Stats counts stored twins and snapshots.
func (s *TwinStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Versions: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM twin_snapshots`).Scan(&st.Snapshots); err != nil {
		return Stats{}, errors.Wrap(err, "count snapshots")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version, COUNT(*) FROM twins GROUP BY version`)
	if err != nil {
		return Stats{}, errors.Wrap(err, "count twins")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			version string
			n       int
		)
		if err := rows.Scan(&version, &n); err != nil {
			return Stats{}, errors.Wrap(err, "scan version count")
		}
		st.Versions[version] = n
		st.Twins += n
	}
	return st, errors.Wrap(rows.Err(), "iterate version counts")
}
