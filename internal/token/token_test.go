package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatmesh/chatmesh/internal/apperr"
)

func mustService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("deployment-secret", "chatmesh-test")
	if err != nil {
		t.Fatalf("NewService() = %v", err)
	}
	return svc
}

func TestNewServiceRejectsEmptySecret(t *testing.T) {
	if _, err := NewService("", "issuer"); err == nil {
		t.Fatal("expected an error for an empty secret")
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	svc := mustService(t)

	raw, err := svc.IssueUserToken("alice")
	if err != nil {
		t.Fatalf("IssueUserToken() = %v", err)
	}

	claims, err := svc.VerifyUserToken(raw)
	if err != nil {
		t.Fatalf("VerifyUserToken() = %v", err)
	}
	if claims.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", claims.UserID)
	}
}

func TestCapabilityTokenRoundTrip(t *testing.T) {
	svc := mustService(t)

	raw, err := svc.IssueCapability("alice", 7, "worker-a:9191")
	if err != nil {
		t.Fatalf("IssueCapability() = %v", err)
	}

	claims, err := svc.VerifyCapability(raw)
	if err != nil {
		t.Fatalf("VerifyCapability() = %v", err)
	}
	if claims.UserID != "alice" || claims.ChannelID != 7 || claims.WorkerAddr != "worker-a:9191" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > CapabilityTTL+time.Second {
		t.Errorf("capability TTL looks wrong: %v", claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	}
}

func TestWorkerTokenRoundTrip(t *testing.T) {
	svc := mustService(t)

	raw, err := svc.IssueWorkerToken("worker-a:9191")
	if err != nil {
		t.Fatalf("IssueWorkerToken() = %v", err)
	}
	claims, err := svc.VerifyWorkerToken(raw)
	if err != nil {
		t.Fatalf("VerifyWorkerToken() = %v", err)
	}
	if claims.WorkerAddr != "worker-a:9191" {
		t.Errorf("WorkerAddr = %q, want worker-a:9191", claims.WorkerAddr)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := mustService(t)
	other, err := NewService("a-different-secret", "chatmesh-test")
	if err != nil {
		t.Fatalf("NewService() = %v", err)
	}

	raw, err := svc.IssueUserToken("alice")
	if err != nil {
		t.Fatalf("IssueUserToken() = %v", err)
	}

	if _, err := other.VerifyUserToken(raw); err == nil {
		t.Fatal("expected verification to fail under a different secret")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.AuthInvalid {
		t.Fatalf("got %v, want AuthInvalid", err)
	}
}

func TestVerifyRejectsExpiredCapability(t *testing.T) {
	svc := mustService(t)

	claims := &CapabilityClaims{
		UserID:     "alice",
		ChannelID:  1,
		WorkerAddr: "worker-a:9191",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}

	// Build directly rather than via IssueCapability so we can backdate
	// the expiry.
	raw, err := svc.sign(claims)
	if err != nil {
		t.Fatalf("sign() = %v", err)
	}

	if _, err := svc.VerifyCapability(raw); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.AuthInvalid {
		t.Fatalf("got %v, want AuthInvalid", err)
	}
}

func TestVerifyMissingToken(t *testing.T) {
	svc := mustService(t)
	if _, err := svc.VerifyUserToken(""); err == nil {
		t.Fatal("expected an error for an empty token string")
	} else if ae, ok := apperr.Of(err); !ok || ae.Kind != apperr.AuthMissing {
		t.Fatalf("got %v, want AuthMissing", err)
	}
}
