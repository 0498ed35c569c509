package podio

import (
	"context"
	"errors"
)

// TokenSource supplies the OAuth2 access token sent with each request.
// Obtaining and refreshing tokens is up to the implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no access token configured")
	}
	return string(t), nil
}
