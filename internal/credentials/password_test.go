package credentials

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	stored, err := Hash("correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Hash() = %v", err)
	}

	ok, err := Verify(stored, "correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if !ok {
		t.Fatal("Verify() = false, want true for the correct password")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	stored, err := Hash("correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Hash() = %v", err)
	}

	ok, err := Verify(stored, "wrong-password", "pepper-123")
	if err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if ok {
		t.Fatal("Verify() = true, want false for an incorrect password")
	}
}

func TestVerifyRejectsWrongPepper(t *testing.T) {
	stored, err := Hash("correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Hash() = %v", err)
	}

	ok, err := Verify(stored, "correct-horse", "different-pepper")
	if err != nil {
		t.Fatalf("Verify() = %v", err)
	}
	if ok {
		t.Fatal("Verify() = true, want false under a mismatched pepper")
	}
}

func TestHashProducesDifferentSaltsPerCall(t *testing.T) {
	a, err := Hash("correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Hash() = %v", err)
	}
	b, err := Hash("correct-horse", "pepper-123")
	if err != nil {
		t.Fatalf("Hash() = %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password should differ due to random salts")
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	if _, err := Hash("", "pepper"); err == nil {
		t.Fatal("expected an error for an empty password")
	}
}

func TestVerifyRejectsMalformedStoredHash(t *testing.T) {
	if _, err := Verify("not-a-valid-hash", "password", "pepper"); err == nil {
		t.Fatal("expected an error for a malformed stored hash")
	}
}
