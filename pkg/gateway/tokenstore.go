// Package gateway implements HTTP/WebSocket authentication and authorization
// for the daemon's TCP listener: bearer-token minting and verification,
// read/write scope enforcement, the global writes-enabled guardrail, and an
// append-only audit log. The Unix-domain socket listener never passes
// through this package — it is trusted by same-user access alone.
package gateway

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

const tokenSecretBytes = 20 // 160 bits, comfortably above the 128-bit floor

type tokenDocument struct {
	Version int           `json:"version"`
	Tokens  []types.Token `json:"tokens"`
}

// TokenStore owns the durable set of gateway bearer tokens, stored the same
// way the project registry is: one JSON document guarded by a cooperative
// file lock, rewritten atomically on every mutation.
type TokenStore struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	log         zerolog.Logger
}

// NewTokenStore returns a TokenStore backed by path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: 5 * time.Second,
		log:         log.WithComponent("gateway_tokens"),
	}
}

// Mint generates a new opaque, ≥128-bit random token, stores only its salted
// hash, and returns the record plus the one-time plaintext secret (which the
// caller must display to the user and never persist itself).
func (s *TokenStore) Mint(scope types.Scope, description string) (types.Token, string, error) {
	secretBytes := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		return types.Token{}, "", apperr.Wrap(apperr.Fatal, "token_rand_failed", "generate token secret", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(secretBytes)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return types.Token{}, "", apperr.Wrap(apperr.Fatal, "token_rand_failed", "generate token salt", err)
	}
	saltStr := base64.RawURLEncoding.EncodeToString(salt)

	tok := types.Token{
		ID:           uuid.NewString(),
		HashedSecret: hashSecret(plaintext, saltStr),
		Salt:         saltStr,
		Scope:        scope,
		Description:  description,
		CreatedAt:    time.Now(),
	}

	err := s.withLock(func(doc *tokenDocument) (bool, error) {
		doc.Tokens = append(doc.Tokens, tok)
		return true, nil
	})
	if err != nil {
		return types.Token{}, "", err
	}
	return tok, plaintext, nil
}

// Revoke removes a token record by id. It is idempotent: revoking an
// already-absent id succeeds without error.
func (s *TokenStore) Revoke(id string) error {
	return s.withLock(func(doc *tokenDocument) (bool, error) {
		for i, t := range doc.Tokens {
			if t.ID == id {
				doc.Tokens = append(doc.Tokens[:i], doc.Tokens[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
}

// List returns every token record, sorted by creation time. Plaintext
// secrets are never retained, so this is safe to expose to an operator.
func (s *TokenStore) List() ([]types.Token, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.Tokens, func(i, j int) bool { return doc.Tokens[i].CreatedAt.Before(doc.Tokens[j].CreatedAt) })
	return doc.Tokens, nil
}

// Verify finds the token record whose salted hash matches plaintext, using a
// constant-time comparison against every candidate so that response timing
// does not leak which record (if any) is closest to matching.
func (s *TokenStore) Verify(plaintext string) (types.Token, bool, error) {
	doc, err := s.read()
	if err != nil {
		return types.Token{}, false, err
	}
	var found types.Token
	var ok bool
	for _, t := range doc.Tokens {
		candidate := hashSecret(plaintext, t.Salt)
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(t.HashedSecret)) == 1 {
			found, ok = t, true
			// Do not break early: keep comparing remaining records so the
			// loop's duration does not depend on match position.
		}
	}
	return found, ok, nil
}

func hashSecret(plaintext, salt string) string {
	sum := sha256.Sum256([]byte(salt + plaintext))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *TokenStore) read() (*tokenDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &tokenDocument{Version: 1}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "token_store_read_failed", "read token store", err)
	}
	var doc tokenDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "token_store_corrupt", "parse token store", err)
	}
	return &doc, nil
}

func (s *TokenStore) withLock(mutate func(doc *tokenDocument) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return apperr.Wrap(apperr.Fatal, "token_store_mkdir_failed", "create gateway dir", err)
	}

	fl := flock.New(s.lockPath)
	locked, err := tryLockWithBackoff(fl, s.lockTimeout)
	if err != nil {
		return err
	}
	if !locked {
		return apperr.New(apperr.Conflict, "token_store_lock_timeout", "timed out acquiring token store lock").WithRetryable(true)
	}
	defer fl.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	changed, err := mutate(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.write(doc)
}

func (s *TokenStore) write(doc *tokenDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "token_store_marshal_failed", "marshal token store", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperr.Wrap(apperr.Fatal, "token_store_write_failed", "write token store temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apperr.Wrap(apperr.Fatal, "token_store_rename_failed", "rename token store temp file", err)
	}
	return nil
}
