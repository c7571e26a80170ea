// Package auth implements the API key + HMAC request authentication used by
// the sweep gateway. Every mutating request is signed over its timestamp,
// nonce, method, canonical path and body; nonces are tracked per key to block
// replays inside the accepted timestamp window.
package auth

import (
	"container/list"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey identifies the calling client.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection within the timestamp window.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded HMAC-SHA256 signature.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature bounds the body size hashed during authentication.
	MaxBodyForSignature int = 1 << 20

	maxTimestampSkew     = 2 * time.Minute
	maxNonceWindow       = 10 * time.Minute
	defaultNonceCapacity = 4096
	maxNonceCapacity     = 65536
)

// Principal identifies an authenticated API client.
type Principal struct {
	APIKey string
}

// Authenticator verifies API key + HMAC signatures on incoming requests.
type Authenticator struct {
	secrets  map[string]string
	skew     time.Duration
	nonceTTL time.Duration
	capacity int
	nowFn    func() time.Time

	mu     sync.Mutex
	nonces map[string]*nonceCache
}

// NewAuthenticator builds an Authenticator from API key identifiers mapped to
// their shared secrets. Zero durations fall back to safe defaults; values
// above the hard ceilings are clamped.
func NewAuthenticator(secrets map[string]string, skew, nonceTTL time.Duration, capacity int, nowFn func() time.Time) *Authenticator {
	cloned := make(map[string]string, len(secrets))
	for key, secret := range secrets {
		cloned[strings.TrimSpace(key)] = strings.TrimSpace(secret)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 || skew > maxTimestampSkew {
		skew = maxTimestampSkew
	}
	if nonceTTL <= 0 || nonceTTL > maxNonceWindow {
		nonceTTL = maxNonceWindow
	}
	if nonceTTL < skew {
		nonceTTL = skew
	}
	if capacity <= 0 {
		capacity = defaultNonceCapacity
	}
	if capacity > maxNonceCapacity {
		capacity = maxNonceCapacity
	}
	return &Authenticator{
		secrets:  cloned,
		skew:     skew,
		nonceTTL: nonceTTL,
		capacity: capacity,
		nowFn:    nowFn,
		nonces:   make(map[string]*nonceCache),
	}
}

// Authenticate validates headers and signature, returning the caller
// principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if apiKey == "" {
		return nil, errors.New("missing " + HeaderAPIKey + " header")
	}
	secret, ok := a.secrets[apiKey]
	if !ok || secret == "" {
		return nil, errors.New("unknown API key")
	}
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestampHeader == "" {
		return nil, errors.New("missing " + HeaderTimestamp + " header")
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return nil, fmt.Errorf("timestamp outside allowed skew of %s", a.skew)
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return nil, errors.New("missing " + HeaderNonce + " header")
	}
	provided := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if provided == "" {
		return nil, errors.New("missing " + HeaderSignature + " header")
	}
	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	expected := ComputeSignature(secret, timestampHeader, nonce, r.Method, CanonicalRequestPath(r), body)
	if !hmac.Equal(providedBytes, expected) {
		return nil, errors.New("invalid signature")
	}
	if a.cacheFor(apiKey).Seen(timestampHeader+"|"+nonce, now) {
		return nil, errors.New("nonce already used")
	}
	return &Principal{APIKey: apiKey}, nil
}

func (a *Authenticator) cacheFor(apiKey string) *nonceCache {
	a.mu.Lock()
	defer a.mu.Unlock()
	cache, ok := a.nonces[apiKey]
	if !ok {
		cache = newNonceCache(a.nonceTTL, a.capacity)
		a.nonces[apiKey] = cache
	}
	return cache
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery sorts raw query parameters for stable HMAC signing.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// ComputeSignature builds the HMAC-SHA256 signature bytes for the request
// metadata.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// nonceCache is a TTL + capacity bounded set of observed nonces.
type nonceCache struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceCache(ttl time.Duration, capacity int) *nonceCache {
	return &nonceCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen reports whether the nonce was already observed inside the TTL window
// and records it otherwise.
func (n *nonceCache) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	if _, exists := n.entries[key]; exists {
		return true
	}
	for n.capacity > 0 && n.order.Len() >= n.capacity {
		n.evictOldest()
	}
	n.entries[key] = n.order.PushBack(nonceEntry{key: key, ts: now})
	return false
}

func (n *nonceCache) evictExpired(cutoff time.Time) {
	for {
		front := n.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(nonceEntry)
		if !entry.ts.Before(cutoff) {
			return
		}
		n.order.Remove(front)
		delete(n.entries, entry.key)
	}
}

func (n *nonceCache) evictOldest() {
	front := n.order.Front()
	if front == nil {
		return
	}
	entry := front.Value.(nonceEntry)
	n.order.Remove(front)
	delete(n.entries, entry.key)
}
