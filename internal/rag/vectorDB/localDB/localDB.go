package localDB

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/internal/rag/vectorDB"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite"
)

const (
	dbFileName   = "vectors.db"
	lockFileName = ".lock"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name        TEXT PRIMARY KEY,
	vector_size INTEGER NOT NULL,
	distance    TEXT NOT NULL DEFAULT 'cosine'
);
CREATE TABLE IF NOT EXISTS points (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	vector     TEXT NOT NULL,
	data       TEXT NOT NULL,
	source     TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);`

// Store is the embedded single-process vector store kept under the data dir.
type Store struct {
	db     *sql.DB
	dir    string
	lock   *lockFile
	logger *logger_i.Logger
}

// Open opens or creates the store in dir. A lock left behind by a dead
// process is cleared; a live holder yields ErrStoreLocked.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	logger := logger_i.NewLogger("LocalStore")

	lock, err := acquireLock(filepath.Join(dir, lockFileName), logger)
	if err != nil {
		return nil, err
	}

	dsn := filepath.Join(dir, dbFileName) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	// one writer, the lock file already keeps other processes out
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		lock.release()
		return nil, fmt.Errorf("initialising local store: %w", err)
	}
	logger.Debug("local store opened", "dir", dir)
	return &Store{db: db, dir: dir, lock: lock, logger: logger}, nil
}

func (s *Store) Close() error {
	err := s.db.Close()
	s.lock.release()
	return err
}

func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	if name == "" {
		return commonModels.ErrEmptyCollectionName
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO collections(name, vector_size) VALUES (?, ?)`, name, int64(vectorSize))
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.vectorSize(ctx, s.db, name)
	if errors.Is(err, commonModels.ErrSourceNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Upsert(ctx context.Context, name string, points []commonModels.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	size, err := s.vectorSize(ctx, tx, name)
	if err != nil {
		return err
	}
	if err := insertPoints(ctx, tx, name, size, points); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceCollection drops and recreates name with points in one transaction.
func (s *Store) ReplaceCollection(ctx context.Context, name string, vectorSize uint64, points []commonModels.Point) error {
	if name == "" {
		return commonModels.ErrEmptyCollectionName
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO collections(name, vector_size) VALUES (?, ?)`, name, int64(vectorSize)); err != nil {
		return err
	}
	if err := insertPoints(ctx, tx, name, vectorSize, points); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("collection replaced", "collection", name, "points", len(points))
	return nil
}

func (s *Store) Search(ctx context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error) {
	size, err := s.vectorSize(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if uint64(len(vector)) != size {
		return nil, fmt.Errorf("%s expects %d dimensions, query has %d: %w", name, size, len(vector), commonModels.ErrDimensionMismatch)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, data, source FROM points WHERE collection = ? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []commonModels.Point
	for rows.Next() {
		var p commonModels.Point
		var v pgvector.Vector
		if err := rows.Scan(&p.ID, &v, &p.Payload.Data, &p.Payload.Source); err != nil {
			return nil, fmt.Errorf("reading point: %w", err)
		}
		p.Vector = v.Slice()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorDB.TopHits(points, vector, limit), nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) vectorSize(ctx context.Context, q querier, name string) (uint64, error) {
	var size int64
	err := q.QueryRowContext(ctx, `SELECT vector_size FROM collections WHERE name = ?`, name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", name, commonModels.ErrSourceNotFound)
	}
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, name string, size uint64, points []commonModels.Point) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO points(collection, id, vector, data, source) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET vector = excluded.vector, data = excluded.data, source = excluded.source`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if uint64(len(p.Vector)) != size {
			return fmt.Errorf("point %s has %d dimensions, %s expects %d: %w", p.ID, len(p.Vector), name, size, commonModels.ErrDimensionMismatch)
		}
		if _, err := stmt.ExecContext(ctx, name, p.ID, pgvector.NewVector(p.Vector), p.Payload.Data, p.Payload.Source); err != nil {
			return fmt.Errorf("inserting point %s: %w", p.ID, err)
		}
	}
	return nil
}

// Sources lists the distinct payload sources stored in a collection.
func (s *Store) Sources(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM points WHERE collection = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	sort.Strings(out)
	return out, rows.Err()
}
