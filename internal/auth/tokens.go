package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"media-manager/internal/logging"
	"media-manager/internal/metrics"
)

// ErrInvalidToken is returned for unknown users, malformed tokens and wrong
// secrets alike.
var ErrInvalidToken = errors.New("invalid token")

// verifiedTTL bounds how long a verified token skips the bcrypt check.
const verifiedTTL = 5 * time.Minute

// Entry is one user of the token store file.
type Entry struct {
	Principal `yaml:",inline"`
	Hash      string `yaml:"hash"`
}

type tokensFile struct {
	Tokens []Entry `yaml:"tokens"`
}

// TokenStore validates bearer tokens against bcrypt hashes.
type TokenStore struct {
	entries  map[string]Entry
	verified *cache.Cache
}

// NewTokenStore builds a store from entries. User names must be unique and
// must not contain a dot.
func NewTokenStore(entries []Entry) (*TokenStore, error) {
	s := &TokenStore{
		entries:  make(map[string]Entry, len(entries)),
		verified: cache.New(verifiedTTL, 2*verifiedTTL),
	}
	for _, e := range entries {
		switch {
		case e.User == "" || strings.Contains(e.User, "."):
			return nil, fmt.Errorf("invalid user name %q", e.User)
		case e.Hash == "":
			return nil, fmt.Errorf("user %s has no hash", e.User)
		}
		if _, dup := s.entries[e.User]; dup {
			return nil, fmt.Errorf("duplicate user %s", e.User)
		}
		if _, err := bcrypt.Cost([]byte(e.Hash)); err != nil {
			return nil, fmt.Errorf("user %s: %w", e.User, err)
		}
		s.entries[e.User] = e
	}
	return s, nil
}

// LoadTokenStore reads the YAML token store at path.
func LoadTokenStore(path string) (*TokenStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token store: %w", err)
	}
	var f tokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse token store %s: %w", path, err)
	}
	s, err := NewTokenStore(f.Tokens)
	if err != nil {
		return nil, fmt.Errorf("token store %s: %w", path, err)
	}
	logging.Info("Loaded %d API tokens from %s", len(s.entries), path)
	return s, nil
}

// Len returns the number of users.
func (s *TokenStore) Len() int {
	return len(s.entries)
}

// Authenticate returns the principal token belongs to.
func (s *TokenStore) Authenticate(token string) (*Principal, error) {
	key := fingerprint(token)
	if v, ok := s.verified.Get(key); ok {
		metrics.AuthAttemptsTotal.WithLabelValues("cached").Inc()
		p := v.(Principal)
		return &p, nil
	}

	user, secret, ok := strings.Cut(token, ".")
	e, known := s.entries[user]
	if !ok || !known || secret == "" {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(e.Hash), []byte(secret)); err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidToken
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	s.verified.Set(key, e.Principal, cache.DefaultExpiration)
	p := e.Principal
	return &p, nil
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewSecret returns a random URL-safe secret.
func NewSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashSecret returns the bcrypt hash stored for secret.
func HashSecret(secret string) (string, error) {
	if len(secret) > 72 {
		return "", errors.New("secret must not exceed 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
