package cryptox

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("sensitive clinical note")

	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed output contains plaintext")
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", opened, plaintext)
	}
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	key := testKey()
	plaintext := []byte("same input")

	s1, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	s2, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Fatalf("expected different ciphertext for identical plaintext")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, err := Seal([]byte("data"), testKey())
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}

	wrong := testKey()
	wrong[0] ^= 0xff
	if _, err := Open(sealed, wrong); err == nil {
		t.Fatalf("expected error for wrong key, got nil")
	}
}

func TestOpen_Tampered(t *testing.T) {
	key := testKey()
	sealed, err := Seal([]byte("data"), key)
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}

	sealed[len(sealed)-1] ^= 0x01
	if _, err := Open(sealed, key); err == nil {
		t.Fatalf("expected error for tampered ciphertext, got nil")
	}
}

func TestOpen_TooShort(t *testing.T) {
	if _, err := Open([]byte("short"), testKey()); err == nil {
		t.Fatalf("expected error for truncated input, got nil")
	}
}

func TestDigest_KnownValue(t *testing.T) {
	got := Digest([]byte("hello"))
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("Digest mismatch: got %s want %s", got, want)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	if Digest([]byte("a")) != Digest([]byte("a")) {
		t.Fatalf("expected same digest for same input")
	}
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Fatalf("expected different digests for different inputs")
	}
}

func TestHashAndVerifyCredential(t *testing.T) {
	secret := []byte("correct horse battery staple")

	encoded, err := HashCredential(secret)
	if err != nil {
		t.Fatalf("HashCredential error: %v", err)
	}

	ok, err := VerifyCredential(encoded, secret)
	if err != nil {
		t.Fatalf("VerifyCredential error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match for correct secret")
	}

	ok, err = VerifyCredential(encoded, []byte("wrong"))
	if err != nil {
		t.Fatalf("VerifyCredential error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch for wrong secret")
	}
}

func TestHashCredential_SaltedPerCall(t *testing.T) {
	secret := []byte("s")
	h1, err := HashCredential(secret)
	if err != nil {
		t.Fatalf("HashCredential error: %v", err)
	}
	h2, err := HashCredential(secret)
	if err != nil {
		t.Fatalf("HashCredential error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected different encodings for same secret (random salt)")
	}
}

func TestVerifyCredential_Malformed(t *testing.T) {
	for _, encoded := range []string{"", "nodollar", "zz$00", "00$zz"} {
		_, err := VerifyCredential(encoded, []byte("x"))
		if !errors.Is(err, ErrMalformedCredentialHash) {
			t.Fatalf("encoded %q: want ErrMalformedCredentialHash, got %v", encoded, err)
		}
	}
}
