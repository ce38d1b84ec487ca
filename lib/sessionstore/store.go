// Package sessionstore persists browser authentication state per user
// identity so a saved session can be reused across runs without another
// CAPTCHA solve.
package sessionstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"koubs-backend/lib/browser"
)

// Sessions expire a fixed interval after they are saved, the portal's
// server side session does not live much longer than this anyway.
const SessionTTL = 2 * time.Hour

// ErrNoSession is returned by Load when no session artifacts exist for
// the identity.
var ErrNoSession = errors.New("no saved session")

type metadata struct {
	Username  string    `json:"username"`
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store struct {
	dir string

	// now is swappable for expiry tests
	now func() time.Time
}

func NewStore(dir string) Store {
	return Store{dir: dir, now: time.Now}
}

// WithClock returns a copy of the store using the given clock, for
// exercising expiry behavior in tests.
func (s Store) WithClock(now func() time.Time) Store {
	s.now = now
	return s
}

// identityHash derives a filesystem safe, non-reversible file name
// component from the user identity.
func identityHash(identity string) string {
	sum := md5.Sum([]byte(identity))
	return hex.EncodeToString(sum[:])[:12]
}

func (s Store) cookiePath(identity string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_cookies.json", identityHash(identity)))
}

func (s Store) metadataPath(identity string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_session.json", identityHash(identity)))
}

func writeFileAtomic(path string, contents []byte) error {
	tmp := path + ".tmp"
	err := os.WriteFile(tmp, contents, 0600)
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Save overwrites any prior session record for the identity. The cookie
// blob is written before the metadata record, a crash in between leaves a
// state HasValidSession treats as no session.
func (s Store) Save(identity string, cookies []browser.Cookie) error {
	err := os.MkdirAll(s.dir, 0700)
	if err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	cookieBlob, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("serialize cookies: %w", err)
	}
	err = writeFileAtomic(s.cookiePath(identity), cookieBlob)
	if err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}

	now := s.now()
	meta, err := json.Marshal(metadata{
		Username:  identity,
		SavedAt:   now,
		ExpiresAt: now.Add(SessionTTL),
	})
	if err != nil {
		return fmt.Errorf("serialize session metadata: %w", err)
	}
	err = writeFileAtomic(s.metadataPath(identity), meta)
	if err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}

// HasValidSession reports whether both artifacts exist, parse cleanly and
// the record has not expired. It never returns an error, any failure mode
// reads as "no session".
func (s Store) HasValidSession(identity string) bool {
	cookieBlob, err := os.ReadFile(s.cookiePath(identity))
	if err != nil {
		return false
	}
	var cookies []browser.Cookie
	err = json.Unmarshal(cookieBlob, &cookies)
	if err != nil {
		return false
	}

	metaBlob, err := os.ReadFile(s.metadataPath(identity))
	if err != nil {
		return false
	}
	var meta metadata
	err = json.Unmarshal(metaBlob, &meta)
	if err != nil {
		return false
	}

	return s.now().Before(meta.ExpiresAt)
}

// Load injects the stored cookies into the target driver. Cookies the
// driver rejects are skipped, the portal tolerates a partial jar.
func (s Store) Load(ctx context.Context, identity string, drv browser.Driver) error {
	cookieBlob, err := os.ReadFile(s.cookiePath(identity))
	if os.IsNotExist(err) {
		return ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	var cookies []browser.Cookie
	err = json.Unmarshal(cookieBlob, &cookies)
	if err != nil {
		return fmt.Errorf("parse cookies: %w", err)
	}

	for _, cookie := range cookies {
		err := drv.AddCookie(ctx, cookie)
		if err != nil {
			slog.DebugContext(ctx, "skipping rejected cookie", "name", cookie.Name, "err", err)
			continue
		}
	}
	return nil
}

// Clear deletes both artifacts. It is idempotent.
func (s Store) Clear(identity string) error {
	err := os.Remove(s.cookiePath(identity))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	err = os.Remove(s.metadataPath(identity))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
