// File: internal/infra/security/token_signer.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"telegram-license-server/internal/domain"
)

// TokenPayload is the signed body of an offline activation token. Field
// order is alphabetical so the encoded JSON has sorted keys.
type TokenPayload struct {
	Code           string  `json:"c"`
	IsDeveloper    bool    `json:"d"`
	ExpiresAt      *string `json:"e"`
	HWID           string  `json:"h"`
	InstallationID string  `json:"i"`
	IssuedAt       int64   `json:"t"`
}

// TokenSigner produces and checks tokens of the form
// base64(json) + "." + hex(HMAC-SHA256(json)).
// Freshness is a verifier rule: the signature itself never expires.
type TokenSigner struct {
	secret []byte
	maxAge time.Duration
}

// NewTokenSigner returns domain.ErrSecretNotConfigured for an empty secret.
func NewTokenSigner(secret string, maxAge time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, domain.ErrSecretNotConfigured
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	return &TokenSigner{secret: []byte(secret), maxAge: maxAge}, nil
}

func (s *TokenSigner) Sign(p TokenPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body) + "." + s.mac(body), nil
}

// Verify checks the signature over the decoded payload, then rejects tokens
// issued more than maxAge before now.
func (s *TokenSigner) Verify(token string, now time.Time) (*TokenPayload, error) {
	b64, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || b64 == "" || sig == "" {
		return nil, domain.ErrInvalidToken
	}
	body, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !hmac.Equal([]byte(s.mac(body)), []byte(strings.ToLower(sig))) {
		return nil, domain.ErrInvalidToken
	}

	var p TokenPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if now.Sub(time.Unix(p.IssuedAt, 0)) > s.maxAge {
		return nil, domain.ErrStaleToken
	}
	return &p, nil
}

func (s *TokenSigner) mac(body []byte) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
