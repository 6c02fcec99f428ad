package jobcue

import (
	"context"
	"errors"
	"testing"
)

func TestCredentialProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("should report absent without a token", func(t *testing.T) {
		provider := NewCredentialProvider(&memoryStore{}, nil)
		if token, ok := provider.Token(ctx); ok || token != "" {
			t.Fatalf("\nwanted:\nabsent\ngot:\n%q", token)
		}
	})

	t.Run("should set and clear the token", func(t *testing.T) {
		provider := NewCredentialProvider(&memoryStore{}, nil)

		if err := provider.SetToken(ctx, "abc"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if token, ok := provider.Token(ctx); !ok || token != "abc" {
			t.Fatalf("\nwanted:\nabc\ngot:\n%q", token)
		}
		if err := provider.Clear(ctx); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if _, ok := provider.Token(ctx); ok {
			t.Fatalf("expected the token to be cleared")
		}
	})

	t.Run("should report absent when the store fails", func(t *testing.T) {
		provider := NewCredentialProvider(&memoryStore{token: "abc", getErr: errors.New("disk I/O error")}, nil)
		if _, ok := provider.Token(ctx); ok {
			t.Fatalf("expected the token to be absent")
		}
	})

	t.Run("should work without a repository", func(t *testing.T) {
		var provider *CredentialProvider
		if _, ok := provider.Token(ctx); ok {
			t.Fatalf("expected the token to be absent")
		}
		if err := provider.Clear(ctx); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if err := NewCredentialProvider(nil, nil).SetToken(ctx, "abc"); err == nil {
			t.Fatalf("wanted: error\ngot: nil")
		}
	})
}
