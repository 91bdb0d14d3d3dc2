package service

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)

	tok, err := iss.Generate(777)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != 777 {
		t.Fatalf("user id = %d, want 777", id)
	}
}

func TestTokenIssuerRejects(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Hour)
	tok, _ := iss.Generate(1)

	other := NewTokenIssuer("other", time.Hour)
	if _, err := other.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v", err)
	}

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := expired.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: err = %v", err)
	}

	if _, err := iss.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}
}
