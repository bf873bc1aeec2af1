// Package confirm mints and verifies the signed, expiring tokens that carry
// a pending complaint change from the request to its emailed confirmation.
//
// A token is an HS256 JWT. Possession of the token is the approval: the
// confirmation endpoint performs no session check, so the confidentiality
// of the delivery channel is the security boundary.
package confirm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the confirmation horizon used when none is configured.
const DefaultTTL = time.Hour

const audience = "complaint-confirmation"

var (
	// ErrInvalidToken covers malformed tokens and signature failures.
	ErrInvalidToken = errors.New("invalid confirmation token")
	// ErrExpired is returned for well-formed tokens past their horizon.
	ErrExpired = errors.New("confirmation token expired")
)

// Action names the field a confirmation changes.
type Action string

const (
	ActionUpdateStatus   Action = "update_status"
	ActionUpdatePriority Action = "update_priority"
)

// Valid reports whether a is a known action kind.
func (a Action) Valid() bool {
	return a == ActionUpdateStatus || a == ActionUpdatePriority
}

// Field returns the human-readable field name the action changes.
func (a Action) Field() string {
	switch a {
	case ActionUpdateStatus:
		return "Status"
	case ActionUpdatePriority:
		return "Priority"
	default:
		return string(a)
	}
}

// Payload is the decoded content of a confirmation token.
type Payload struct {
	ID          string
	ComplaintID uuid.UUID
	Action      Action
	Value       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type claims struct {
	ComplaintID string `json:"cid"`
	Action      Action `json:"act"`
	Value       string `json:"val"`
	jwt.RegisteredClaims
}

// Signer mints and verifies confirmation tokens with a process-wide secret.
// It holds no mutable state and is safe for concurrent use.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customizes a Signer.
type Option func(*Signer)

// WithClock replaces the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner returns a Signer for secret. A non-positive ttl selects DefaultTTL.
func NewSigner(secret string, ttl time.Duration, opts ...Option) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("confirmation secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the confirmation horizon.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Mint signs a token for the given change. The returned payload is exactly
// what Verify will decode from the token.
func (s *Signer) Mint(complaintID uuid.UUID, action Action, value string) (string, Payload, error) {
	if !action.Valid() {
		return "", Payload{}, fmt.Errorf("unknown action %q", action)
	}

	// JWT NumericDate has second precision.
	issued := s.now().UTC().Truncate(time.Second)
	payload := Payload{
		ID:          uuid.NewString(),
		ComplaintID: complaintID,
		Action:      action,
		Value:       value,
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(s.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ComplaintID: complaintID.String(),
		Action:      action,
		Value:       value,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        payload.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Payload{}, err
	}
	return signed, payload, nil
}

// Verify checks the signature and expiry of tokenString and decodes it.
// Signature and format failures yield ErrInvalidToken; a valid token past
// its horizon yields ErrExpired.
func (s *Signer) Verify(tokenString string) (Payload, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Payload{}, ErrInvalidToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, ErrExpired
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	complaintID, err := uuid.Parse(c.ComplaintID)
	if err != nil || !c.Action.Valid() || c.ID == "" {
		return Payload{}, ErrInvalidToken
	}

	payload := Payload{
		ID:          c.ID,
		ComplaintID: complaintID,
		Action:      c.Action,
		Value:       c.Value,
	}
	if c.IssuedAt != nil {
		payload.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		payload.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return payload, nil
}
