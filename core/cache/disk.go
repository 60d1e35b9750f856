package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
	"github.com/jask/dashlego/internal/database"
)

const diskFileName = "cache.db"

// Disk persists encoded frames in a sqlite file under a directory. Expired
// entries read as missing and are removed lazily.
type Disk struct {
	db  *sql.DB
	dir string
	ttl time.Duration
	now func() time.Time
}

// DiskOption configures a Disk backend.
type DiskOption func(*Disk)

// WithDiskTTL sets the default entry lifetime.
func WithDiskTTL(ttl time.Duration) DiskOption {
	return func(d *Disk) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for expiry tests.
func WithClock(now func() time.Time) DiskOption {
	return func(d *Disk) { d.now = now }
}

// NewDisk opens (creating if needed) the cache store in dir. An empty dir
// uses a fresh temporary directory.
func NewDisk(dir string, opts ...DiskOption) (*Disk, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "dashlego-cache-")
		if err != nil {
			return nil, errs.Cache("open disk cache", err)
		}
		dir = tmp
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Cache("open disk cache", fmt.Errorf("mkdir %s: %w", dir, err))
	}
	db, err := database.Open(filepath.Join(dir, diskFileName))
	if err != nil {
		return nil, errs.Cache("open disk cache", err)
	}
	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, errs.Cache("migrate disk cache", err)
	}
	d := &Disk{db: db, dir: dir, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dir returns the directory holding the store.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) Contains(ctx context.Context, key string) (bool, error) {
	var expires sql.NullInt64
	err := d.db.QueryRowContext(ctx, `SELECT expires_at FROM cache_entries WHERE key = ?`, key).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.Cache("disk contains", err)
	}
	return !d.expired(expires), nil
}

func (d *Disk) Get(ctx context.Context, key string) (dataframe.DataFrame, error) {
	var (
		value   []byte
		expires sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return frame.Empty(), ErrNotFound
	}
	if err != nil {
		return frame.Empty(), errs.Cache("disk get", err)
	}
	if d.expired(expires) {
		if _, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return frame.Empty(), errs.Cache("disk evict", err)
		}
		return frame.Empty(), ErrNotFound
	}
	df, err := frame.Decode(value)
	if err != nil {
		return frame.Empty(), errs.Cache("disk get", err)
	}
	return df, nil
}

func (d *Disk) Set(ctx context.Context, key string, df dataframe.DataFrame, ttl time.Duration) error {
	value, err := frame.Encode(df)
	if err != nil {
		return errs.Cache("disk set", err)
	}
	if ttl <= 0 {
		ttl = d.ttl
	}
	now := d.now()
	err = database.WithTx(ctx, d.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_entries(key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
			key, value, now.UnixNano(), now.Add(ttl).UnixNano())
		return err
	})
	if err != nil {
		return errs.Cache("disk set", err)
	}
	return nil
}

// Purge deletes every expired entry and returns how many were removed.
func (d *Disk) Purge(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`, d.now().UnixNano())
	if err != nil {
		return 0, errs.Cache("disk purge", err)
	}
	return res.RowsAffected()
}

func (d *Disk) Close() error {
	return d.db.Close()
}

func (d *Disk) expired(expires sql.NullInt64) bool {
	return expires.Valid && expires.Int64 <= d.now().UnixNano()
}
