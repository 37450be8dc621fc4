// Package bundlecache keeps the last good static GTFS bundle on disk.
//
// The zip itself lives next to a SQLite manifest recording where and when it
// was retrieved, its checksum and table sizes. Only bundles that parsed and
// validated are ever stored.
package bundlecache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
)

//go:embed schema.sql
var schemaSQL string

const (
	bundleFile   = "gtfs-static.zip"
	manifestFile = "manifest.db"
	keepHistory  = 10
)

// Manifest describes the cached bundle.
type Manifest struct {
	SHA256      string
	URL         string
	RetrievedAt time.Time
	Size        int64
	Counts      gtfs.Counts
}

// Cache is safe for concurrent use.
type Cache struct {
	dir     string
	db      *sql.DB
	writeMu sync.Mutex
	log     *slog.Logger
}

// Open creates dir if needed and opens (or initialises) the manifest database.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	dsn := "file:" + filepath.Join(dir, manifestFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, db: db, log: logger.With("component", "bundlecache")}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Path is the location of the cached zip.
func (c *Cache) Path() string { return filepath.Join(c.dir, bundleFile) }

// Store replaces the cached bundle. The zip is written to a temporary file
// and renamed into place so readers never see a partial bundle. The manifest
// row commits only after the rename; if the insert or commit fails the
// previous zip stays (or is put back) in place.
func (c *Cache) Store(ctx context.Context, data []byte, m Manifest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if m.SHA256 == "" {
		sum := sha256.Sum256(data)
		m.SHA256 = hex.EncodeToString(sum[:])
	}
	m.Size = int64(len(data))

	tmp, err := os.CreateTemp(c.dir, "gtfs-*.zip.tmp")
	if err != nil {
		return fmt.Errorf("creating temp bundle: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp bundle: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording manifest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `
INSERT INTO feed (sha256, url, retrieved_at, size_bytes, routes, stops, trips, stop_times, services)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SHA256, m.URL, m.RetrievedAt.Unix(), m.Size,
		m.Counts.Routes, m.Counts.Stops, m.Counts.Trips, m.Counts.StopTimes, m.Counts.Services)
	if err != nil {
		return fmt.Errorf("recording manifest: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM feed WHERE id NOT IN (SELECT id FROM feed ORDER BY id DESC LIMIT ?)`, keepHistory); err != nil {
		c.log.Warn("pruning manifest history failed", "error", err)
	}

	prev := c.Path() + ".prev"
	hadPrev := os.Rename(c.Path(), prev) == nil
	if err := os.Rename(tmp.Name(), c.Path()); err != nil {
		if hadPrev {
			_ = os.Rename(prev, c.Path())
		}
		return fmt.Errorf("replacing bundle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		if hadPrev {
			_ = os.Rename(prev, c.Path())
		} else {
			_ = os.Remove(c.Path())
		}
		return fmt.Errorf("recording manifest: %w", err)
	}
	if hadPrev {
		_ = os.Remove(prev)
	}
	c.log.Info("cached static bundle", "sha256", m.SHA256, "size_bytes", m.Size, "url", m.URL)
	return nil
}

// Manifest returns the newest manifest row. A cache that never stored a
// bundle yields errs.NotFound.
func (c *Cache) Manifest(ctx context.Context) (Manifest, error) {
	var (
		m           Manifest
		retrievedAt int64
	)
	err := c.db.QueryRowContext(ctx, `
SELECT sha256, url, retrieved_at, size_bytes, routes, stops, trips, stop_times, services
FROM feed ORDER BY id DESC LIMIT 1`).Scan(
		&m.SHA256, &m.URL, &retrievedAt, &m.Size,
		&m.Counts.Routes, &m.Counts.Stops, &m.Counts.Trips, &m.Counts.StopTimes, &m.Counts.Services)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, errs.Ef(errs.NotFound, "bundlecache.Manifest", "no cached bundle in %s", c.dir)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	m.RetrievedAt = time.Unix(retrievedAt, 0)
	return m, nil
}

// Load returns the cached bundle and its manifest. A bundle whose checksum
// no longer matches the manifest is reported as errs.ParseFailed.
func (c *Cache) Load(ctx context.Context) ([]byte, Manifest, error) {
	m, err := c.Manifest(ctx)
	if err != nil {
		return nil, Manifest{}, err
	}
	data, err := os.ReadFile(c.Path())
	if os.IsNotExist(err) {
		return nil, Manifest{}, errs.Ef(errs.NotFound, "bundlecache.Load", "bundle file %s is missing", c.Path())
	}
	if err != nil {
		return nil, Manifest{}, fmt.Errorf("reading bundle: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != m.SHA256 {
		return nil, Manifest{}, errs.Ef(errs.ParseFailed, "bundlecache.Load", "checksum mismatch: manifest %s, file %s", m.SHA256, got)
	}
	return data, m, nil
}

// Age reports how long ago the cached bundle was retrieved; ok is false when
// nothing is cached.
func (c *Cache) Age(ctx context.Context, now time.Time) (age time.Duration, ok bool) {
	m, err := c.Manifest(ctx)
	if err != nil {
		return 0, false
	}
	if _, err := os.Stat(c.Path()); err != nil {
		return 0, false
	}
	return now.Sub(m.RetrievedAt), true
}
