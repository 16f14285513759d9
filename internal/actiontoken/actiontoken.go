// Package actiontoken verifies the signed tokens carried by magic-link and
// station requests. Token format: base64url(payload) "." base64url(hmac-sha256).
package actiontoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrInvalid = errors.New("invalid action token")
	ErrExpired = errors.New("action token expired")
)

type Claims struct {
	PassportID string      `json:"passport_id,omitempty"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	Exp        int64       `json:"exp"`
}

func (c Claims) Actor() models.Actor {
	return models.Actor{Email: c.Email, Role: c.Role}
}

// BoundTo reports whether the token may act on passport id. A token without
// passport_id is an actor-wide token.
func (c Claims) BoundTo(id string) bool {
	return c.PassportID == "" || strings.EqualFold(c.PassportID, id)
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(c Claims) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal claims")
	}
	p := base64.RawURLEncoding.EncodeToString(payload)
	return p + "." + base64.RawURLEncoding.EncodeToString(s.mac(p)), nil
}

func (s *Signer) Verify(token string, now time.Time) (Claims, error) {
	p, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || p == "" || sig == "" {
		return Claims{}, ErrInvalid
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	if !hmac.Equal(got, s.mac(p)) {
		return Claims{}, ErrInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(p)
	if err != nil {
		return Claims{}, ErrInvalid
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, ErrInvalid
	}
	if c.Email == "" || !c.Role.Valid() {
		return Claims{}, ErrInvalid
	}
	if c.Exp <= now.Unix() {
		return Claims{}, ErrExpired
	}
	return c, nil
}

func (s *Signer) mac(payload string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(payload))
	return h.Sum(nil)
}
