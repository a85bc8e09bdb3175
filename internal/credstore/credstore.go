// Package credstore persists the access/refresh token pair in a local bbolt
// database so sessions survive process restarts.
//
// Buckets:
//
//	tokens — access and refresh token values
//	_meta  — internal: schema version, created_at
package credstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	bolt "go.etcd.io/bbolt"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Bucket and key name constants.
var (
	bucketTokens   = []byte("tokens")
	bucketInternal = []byte("_meta")
	keyAccess      = []byte("access_token")
	keyRefresh     = []byte("refresh_token")
)

// Store wraps a bbolt database holding the credential pair.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTokens, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Token Access ─────────────────────────────────────────────────────────────

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken() string {
	return s.get(keyAccess)
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *Store) RefreshToken() string {
	return s.get(keyRefresh)
}

// SetTokens atomically replaces the credential pair.
func (s *Store) SetTokens(access, refresh string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		if err := b.Put(keyAccess, []byte(access)); err != nil {
			return err
		}
		return b.Put(keyRefresh, []byte(refresh))
	})
}

// Clear removes both tokens.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		if err := b.Delete(keyAccess); err != nil {
			return err
		}
		return b.Delete(keyRefresh)
	})
}

func (s *Store) get(key []byte) string {
	var out string
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTokens).Get(key); v != nil {
			out = string(v)
		}
		return nil
	})
	return out
}

// ─── Token Inspection ─────────────────────────────────────────────────────────

// AccessExpiresWithin reports whether the stored access token expires within
// d. Tokens are decoded without signature verification — the client only
// reads the expiry claim, it never trusts the contents for authorization.
// Missing or undecodable tokens report false; the request pipeline then
// relies on the server's 401 instead.
func (s *Store) AccessExpiresWithin(d time.Duration) bool {
	claims, err := s.Claims()
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < d
}

// Claims decodes the stored access token's claims without verifying the
// signature. Used for expiry checks and `auth status` display only.
func (s *Store) Claims() (jwt.MapClaims, error) {
	raw := s.AccessToken()
	if raw == "" {
		return nil, fmt.Errorf("no access token stored")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return claims, nil
}
