package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestSigner(now time.Time) *Signer {
	s := NewSigner("attendance-tracker", "test-key", 15*time.Minute, 24*time.Hour)
	s.Now = func() time.Time { return now }
	return s
}

func TestIssueAndParse(t *testing.T) {
	now := time.Now()
	s := newTestSigner(now)
	pair, err := s.Issue("reader-1", "demo")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := s.Parse(pair.AccessToken, KindAccess)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.DeviceID() != "reader-1" || claims.ClassID != "demo" || claims.Role != RoleDevice {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := s.Parse(pair.RefreshToken, KindAccess); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestParseRejectsExpiredAndForeign(t *testing.T) {
	now := time.Now()
	s := newTestSigner(now)
	pair, _ := s.Issue("reader-1", "")

	later := newTestSigner(now.Add(time.Hour))
	if _, err := later.Parse(pair.AccessToken, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	other := NewSigner("attendance-tracker", "other-key", time.Minute, time.Minute)
	if _, err := other.Parse(pair.AccessToken, KindAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign key accepted: %v", err)
	}

	wrongIssuer := NewSigner("someone-else", "test-key", time.Minute, time.Minute)
	if _, err := wrongIssuer.Parse(pair.AccessToken, KindAccess); err == nil {
		t.Fatalf("issuer mismatch accepted")
	}
}

func TestRefresh(t *testing.T) {
	s := newTestSigner(time.Now())
	pair, _ := s.Issue("reader-2", "demo")
	next, err := s.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := s.Parse(next.AccessToken, KindAccess)
	if err != nil || claims.DeviceID() != "reader-2" || claims.ClassID != "demo" {
		t.Fatalf("claims = %+v, %v", claims, err)
	}
	if _, err := s.Refresh(pair.AccessToken); err == nil {
		t.Fatalf("access token accepted for refresh")
	}
}

func TestDeviceAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestSigner(time.Now())
	r := gin.New()
	r.GET("/x", DeviceAuth(s), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.DeviceID())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", w.Code)
	}

	pair, _ := s.Issue("reader-3", "")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "reader-3" {
		t.Fatalf("status %d body %q", w.Code, w.Body.String())
	}
}
