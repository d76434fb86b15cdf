package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sqlite "modernc.org/sqlite"

	"basegraph.app/synapse/internal/model"
)

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction("vector_distance_l2", 2, vectorDistanceL2); err != nil {
		panic(fmt.Sprintf("registering vector_distance_l2: %v", err))
	}
}

const vectorSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteVectorStore persists knowledge chunks and their embeddings in a
// local SQLite file. Nearest-neighbour search is a full scan ranked by
// squared Euclidean distance.
type SQLiteVectorStore struct {
	db *sql.DB
}

func NewSQLiteVectorStore(ctx context.Context, path string) (*SQLiteVectorStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	// single writer keeps upserts serialized
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, vectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}

	return &SQLiteVectorStore{db: db}, nil
}

func (s *SQLiteVectorStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the chunk or replaces every column of the existing row
// with the same ID.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, chunk model.KnowledgeChunk, embedding []float32) error {
	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, document, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document   = excluded.document,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			updated_at = excluded.updated_at`,
		chunk.ID, chunk.Document, string(meta), encodeVector(embedding), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Query returns up to k chunks nearest to embedding, nearest first.
func (s *SQLiteVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]model.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, metadata, vector_distance_l2(embedding, ?) AS distance
		FROM chunks
		ORDER BY distance ASC, id ASC
		LIMIT ?`,
		encodeVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var (
			m    model.Match
			meta string
		)
		if err := rows.Scan(&m.ID, &m.Document, &meta, &m.Distance); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *SQLiteVectorStore) Get(ctx context.Context, id string) (*model.KnowledgeChunk, error) {
	var (
		chunk model.KnowledgeChunk
		meta  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document, metadata FROM chunks WHERE id = ?`, id).
		Scan(&chunk.ID, &chunk.Document, &meta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
	}
	return &chunk, nil
}

func (s *SQLiteVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// EmbeddingSpace returns the space recorded by the first upsert, if any.
func (s *SQLiteVectorStore) EmbeddingSpace(ctx context.Context) (model.EmbeddingSpace, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM index_meta WHERE key IN ('embedder', 'dimensions')`)
	if err != nil {
		return model.EmbeddingSpace{}, false, fmt.Errorf("reading index metadata: %w", err)
	}
	defer rows.Close()

	var space model.EmbeddingSpace
	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.EmbeddingSpace{}, false, err
		}
		found = true
		switch key {
		case "embedder":
			space.Embedder = value
		case "dimensions":
			space.Dimensions, _ = strconv.Atoi(value)
		}
	}
	return space, found, rows.Err()
}

// ClaimEmbeddingSpace records space when the index has none and returns
// whichever space is recorded afterwards.
func (s *SQLiteVectorStore) ClaimEmbeddingSpace(ctx context.Context, space model.EmbeddingSpace) (model.EmbeddingSpace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.EmbeddingSpace{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for key, value := range map[string]string{
		"embedder":   space.Embedder,
		"dimensions": strconv.Itoa(space.Dimensions),
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value); err != nil {
			return model.EmbeddingSpace{}, fmt.Errorf("recording %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.EmbeddingSpace{}, fmt.Errorf("committing transaction: %w", err)
	}

	stored, _, err := s.EmbeddingSpace(ctx)
	return stored, err
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("vector: expected blob, got %T", v)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector: blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func vectorDistanceL2(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := decodeVector(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeVector(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_l2: dimension mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum, nil
}
