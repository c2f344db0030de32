package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MediaLock is the exclusive section for id allocation. It holds the
// SQLite write lock from LockMedia until Commit or Unlock.
type MediaLock struct {
	d     *Database
	tx    *sql.Tx
	start time.Time
	done  bool
}

// LockMedia starts the id allocation section. Callers must call Unlock on
// every path; Unlock after Commit is a no-op.
func (d *Database) LockMedia(ctx context.Context) (*MediaLock, error) {
	d.idMu.Lock()

	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	recordQuery("begin_transaction", start, err)
	if err != nil {
		d.idMu.Unlock()
		return nil, err
	}
	return &MediaLock{d: d, tx: tx, start: start}, nil
}

// FindByFile is Database.FindByFile inside the locked section.
func (l *MediaLock) FindByFile(ctx context.Context, storage, relFile string) (*Record, error) {
	return findByFile(ctx, l.tx, storage, relFile)
}

// NextID returns max(id)+1.
func (l *MediaLock) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := l.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM media`).Scan(&id)
	return id, err
}

// Insert writes rec, which must carry an id from NextID.
func (l *MediaLock) Insert(ctx context.Context, rec *Record) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert", start, err) }()

	if rec.ID <= 0 {
		err = errors.New("insert: record has no id")
		return err
	}
	if rec.RawMetadata == "" {
		rec.RawMetadata = "{}"
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = l.tx.ExecContext(ctx, `
		INSERT INTO media (id, storage_path, relative_file, relative_dir, title, metadata,
			captured_at, created_at, updated_at, private, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StoragePath, rec.RelativeFile, rec.RelativeDir, rec.Title, rec.RawMetadata,
		unixSeconds(rec.CapturedAt), rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(), rec.Private, rec.OwnerID)
	return err
}

// Commit commits the section's writes and releases the lock.
func (l *MediaLock) Commit() error {
	if l.done {
		return errors.New("media lock already released")
	}
	err := l.tx.Commit()
	recordQuery("commit", l.start, err)
	l.release()
	return err
}

// Unlock rolls back uncommitted writes and releases the lock.
func (l *MediaLock) Unlock() {
	if l.done {
		return
	}
	err := l.tx.Rollback()
	recordQuery("rollback", l.start, err)
	l.release()
}

func (l *MediaLock) release() {
	l.done = true
	l.d.idMu.Unlock()
}
