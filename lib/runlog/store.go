// Package runlog keeps a small history of successful collection runs,
// purely advisory data shown alongside the cache.
package runlog

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

type Run struct {
	Time      time.Time
	Semesters int
	Courses   int
}

func userHash(identity string) string {
	sum := md5.Sum([]byte(identity))
	return hex.EncodeToString(sum[:])[:12]
}

func (s Store) Record(ctx context.Context, identity string, run Run) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO collection_runs (user_hash, time, semesters, courses)
		 VALUES (?, ?, ?, ?)`,
		userHash(identity), run.Time.Unix(), run.Semesters, run.Courses,
	)
	return err
}

// History returns up to limit runs for the identity, most recent first.
func (s Store) History(ctx context.Context, identity string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT time, semesters, courses FROM collection_runs
		 WHERE user_hash = ? ORDER BY time DESC LIMIT ?`,
		userHash(identity), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var epoch int64
		var run Run
		err := rows.Scan(&epoch, &run.Semesters, &run.Courses)
		if err != nil {
			return nil, err
		}
		run.Time = time.Unix(epoch, 0)
		out = append(out, run)
	}
	return out, rows.Err()
}
