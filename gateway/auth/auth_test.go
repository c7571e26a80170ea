package auth

import (
	"bytes"
	"encoding/hex"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	testKey    = "gateway-key"
	testSecret = "gateway-secret"
)

func newTestAuthenticator(nowFn func() time.Time) *Authenticator {
	return NewAuthenticator(map[string]string{testKey: testSecret}, time.Minute, 2*time.Minute, 16, nowFn)
}

func TestAuthenticateSuccess(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := newTestAuthenticator(func() time.Time { return now })

	body := []byte(`{"destination":"abc"}`)
	req := httptest.NewRequest("POST", "/accounts/aa/sweep", bytes.NewReader(body))
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderNonce, "nonce-1")
	sig := ComputeSignature(testSecret, ts, "nonce-1", "POST", CanonicalRequestPath(req), body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))

	principal, err := auth.Authenticate(req, body)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.APIKey != testKey {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestAuthenticateRejectsReplay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := newTestAuthenticator(func() time.Time { return now })

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	build := func() map[string]string {
		return map[string]string{
			HeaderAPIKey:    testKey,
			HeaderTimestamp: ts,
			HeaderNonce:     "nonce-1",
		}
	}
	req := httptest.NewRequest("POST", "/accounts/aa/sweep", bytes.NewReader(body))
	for k, v := range build() {
		req.Header.Set(k, v)
	}
	sig := ComputeSignature(testSecret, ts, "nonce-1", "POST", CanonicalRequestPath(req), body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))

	if _, err := auth.Authenticate(req, body); err != nil {
		t.Fatalf("first request: %v", err)
	}
	replay := httptest.NewRequest("POST", "/accounts/aa/sweep", bytes.NewReader(body))
	for k, v := range build() {
		replay.Header.Set(k, v)
	}
	replay.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	if _, err := auth.Authenticate(replay, body); err == nil || !strings.Contains(err.Error(), "nonce") {
		t.Fatalf("expected nonce replay rejection, got %v", err)
	}
}

func TestAuthenticateRejectsSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := newTestAuthenticator(func() time.Time { return now })

	body := []byte(`{}`)
	stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
	req := httptest.NewRequest("POST", "/accounts/aa/expire", bytes.NewReader(body))
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, stale)
	req.Header.Set(HeaderNonce, "nonce-1")
	sig := ComputeSignature(testSecret, stale, "nonce-1", "POST", CanonicalRequestPath(req), body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	if _, err := auth.Authenticate(req, body); err == nil || !strings.Contains(err.Error(), "skew") {
		t.Fatalf("expected skew rejection, got %v", err)
	}
}

func TestAuthenticateRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := newTestAuthenticator(func() time.Time { return now })

	body := []byte(`{"amount":"100"}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest("POST", "/accounts/aa/payments", bytes.NewReader(body))
	req.Header.Set(HeaderAPIKey, testKey)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderNonce, "nonce-1")
	sig := ComputeSignature(testSecret, ts, "nonce-1", "POST", CanonicalRequestPath(req), body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))

	tampered := []byte(`{"amount":"999"}`)
	if _, err := auth.Authenticate(req, tampered); err == nil || !strings.Contains(err.Error(), "signature") {
		t.Fatalf("expected signature rejection, got %v", err)
	}
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := newTestAuthenticator(func() time.Time { return now })

	body := []byte(`{}`)
	ts := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest("POST", "/accounts/aa/sweep", bytes.NewReader(body))
	req.Header.Set(HeaderAPIKey, "other")
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderNonce, "nonce-1")
	req.Header.Set(HeaderSignature, "00")
	if _, err := auth.Authenticate(req, body); err == nil {
		t.Fatalf("expected rejection for unknown key")
	}
}

func TestCanonicalQuery(t *testing.T) {
	if got := CanonicalQuery("b=2&a=1"); got != "a=1&b=2" {
		t.Fatalf("unexpected canonical query: %s", got)
	}
	if got := CanonicalQuery(""); got != "" {
		t.Fatalf("empty query should stay empty, got %q", got)
	}
}
