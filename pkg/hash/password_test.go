package hash

import (
	"errors"
	"strings"
	"testing"
)

func TestHash(t *testing.T) {
	hashed, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hashed == "" || hashed == "correct horse battery" {
		t.Fatalf("Hash() = %q", hashed)
	}
	if !strings.HasPrefix(hashed, "$2a$12$") {
		t.Errorf("Hash() cost prefix = %q, want $2a$12$", hashed[:7])
	}

	again, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if again == hashed {
		t.Error("two hashes of the same password are identical, salt missing")
	}
}

func TestHashRejectsShortPasswords(t *testing.T) {
	for _, password := range []string{"", "1234567"} {
		if _, err := Hash(password); !errors.Is(err, ErrPasswordTooShort) {
			t.Errorf("Hash(%q) error = %v, want ErrPasswordTooShort", password, err)
		}
	}
}

func TestCompare(t *testing.T) {
	hashed, err := Hash("inspektion2026")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := Compare(hashed, "inspektion2026"); err != nil {
		t.Errorf("Compare() with correct password error = %v", err)
	}
	if err := Compare(hashed, "Inspektion2026"); err == nil {
		t.Error("Compare() accepted a wrong-case password")
	}
	if err := Compare(hashed, ""); err == nil {
		t.Error("Compare() accepted an empty password")
	}
	if err := Compare("not-a-bcrypt-hash", "inspektion2026"); err == nil {
		t.Error("Compare() accepted a malformed hash")
	}
}
