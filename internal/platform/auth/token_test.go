package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("nursebridge", testSigningKey, time.Hour)
	uid := uuid.New()

	token, exp, err := issuer.Issue(uid, "nurse@example.com", []string{RoleNurse})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("expected expiry in the future, got %v", exp)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != uid.String() {
		t.Errorf("expected subject %s, got %s", uid, claims.Subject)
	}
	if claims.Email != "nurse@example.com" {
		t.Errorf("unexpected email %q", claims.Email)
	}
}

func TestTokenIssuer_RejectsOtherIssuer(t *testing.T) {
	a := NewTokenIssuer("issuer-a", testSigningKey, time.Hour)
	b := NewTokenIssuer("issuer-b", testSigningKey, time.Hour)

	token, _, err := a.Issue(uuid.New(), "", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Error("expected password to match")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("expected mismatch for wrong password")
	}
}
