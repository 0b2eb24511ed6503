// Package auth resolves bearer tokens to user identities. The core treats
// identity as opaque; real verification lives with the auth collaborator.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/consulmed/consulmed/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// StaticVerifier maps known tokens to user ids. Used in tests and for
// pre-provisioned service tokens.
type StaticVerifier struct {
	tokens map[string]domain.UserID
}

func NewStaticVerifier(tokens map[string]domain.UserID) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (domain.UserID, error) {
	id, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return id, nil
}

// InsecureVerifier accepts any non-empty token and uses it as the user id.
// Local mode only.
type InsecureVerifier struct{}

func NewInsecureVerifier() *InsecureVerifier {
	return &InsecureVerifier{}
}

func (v *InsecureVerifier) Verify(ctx context.Context, token string) (domain.UserID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	return domain.UserID(token), nil
}
