// Package token issues and verifies the three signed JWTs this system
// passes around: the long-lived user token, the short-lived capability
// token handed from manager to client at Listen time, and the worker
// token a chat worker presents when it opens its Report stream.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatmesh/chatmesh/internal/apperr"
)

// Default TTLs, named here so callers don't scatter magic durations.
const (
	CapabilityTTL = 5 * time.Second
	UserTokenTTL  = 24 * time.Hour
	WorkerTTL     = 30 * 24 * time.Hour
)

// UserClaims is the payload of a long-lived user token, issued by Login.
type UserClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CapabilityClaims ties one Listen call to exactly one Connect attempt on
// one worker.
type CapabilityClaims struct {
	UserID     string `json:"user_id"`
	ChannelID  int64  `json:"channel_id"`
	WorkerAddr string `json:"worker_addr"`
	jwt.RegisteredClaims
}

// WorkerClaims authenticates a worker's Report stream. The manager
// trusts WorkerAddr from these claims, never from the transport peer
// address (the connection may be behind a proxy or NAT).
type WorkerClaims struct {
	WorkerAddr string `json:"worker_addr"`
	jwt.RegisteredClaims
}

// Service issues and verifies all three token kinds with one shared
// deployment secret, HS256-signed, matching the auth scheme the rest of
// the reference stack already uses for its own session tokens.
type Service struct {
	secret []byte
	issuer string
}

// NewService builds a Service from a deployment secret. An empty secret
// is rejected so a misconfigured deployment fails fast at startup rather
// than minting unsigned-in-practice tokens.
func NewService(secret, issuer string) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token: secret must not be empty")
	}
	if issuer == "" {
		issuer = "chatmesh"
	}
	return &Service{secret: []byte(secret), issuer: issuer}, nil
}

func (s *Service) registered(ttl time.Duration, subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueUserToken mints a 24h user token for Login.
func (s *Service) IssueUserToken(userID string) (string, error) {
	claims := &UserClaims{
		UserID:           userID,
		RegisteredClaims: s.registered(UserTokenTTL, userID),
	}
	return s.sign(claims)
}

// IssueCapability mints a ~5s capability token binding userID to
// channelID on workerAddr, for the Listen -> Connect hand-off.
func (s *Service) IssueCapability(userID string, channelID int64, workerAddr string) (string, error) {
	claims := &CapabilityClaims{
		UserID:           userID,
		ChannelID:        channelID,
		WorkerAddr:       workerAddr,
		RegisteredClaims: s.registered(CapabilityTTL, userID),
	}
	return s.sign(claims)
}

// IssueWorkerToken mints a long-lived worker token for workerAddr to
// present on Report.
func (s *Service) IssueWorkerToken(workerAddr string) (string, error) {
	claims := &WorkerClaims{
		WorkerAddr:       workerAddr,
		RegisteredClaims: s.registered(WorkerTTL, workerAddr),
	}
	return s.sign(claims)
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", apperr.Wrap(apperr.AuthInvalid, "sign token", err)
	}
	return signed, nil
}

func (s *Service) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

// VerifyUserToken parses and validates a user token.
func (s *Service) VerifyUserToken(raw string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := s.parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyCapability parses and validates a capability token.
func (s *Service) VerifyCapability(raw string) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	if err := s.parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyWorkerToken parses and validates a worker token.
func (s *Service) VerifyWorkerToken(raw string) (*WorkerClaims, error) {
	claims := &WorkerClaims{}
	if err := s.parse(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Service) parse(raw string, claims jwt.Claims) error {
	if raw == "" {
		return apperr.New(apperr.AuthMissing, "no token presented")
	}
	tok, err := jwt.ParseWithClaims(raw, claims, s.keyFunc)
	if err != nil {
		return apperr.Wrap(apperr.AuthInvalid, "parse token", err)
	}
	if !tok.Valid {
		return apperr.New(apperr.AuthInvalid, "token failed validation")
	}
	return nil
}
