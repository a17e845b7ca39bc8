package auth

import (
	"strings"
	"testing"
)

const (
	vectorSalt = "00112233445566778899aabbccddeeff"
	// PBKDF2-SHA512("correct horse", ascii(vectorSalt), 10000, 64)
	vectorDigest = "c88de28a4c5f3152954ef3762156620cecd9c3d933b01d90a677b46989d44eebab6750c65d367dfc586ce29697ca7aeb6006382230d72c3edcfeb5427e859236"
	// SHA-256("password")
	legacyDigest = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
)

func TestHashPasswordFormat(t *testing.T) {
	stored, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %q", stored)
	}
	if parts[0] != "10000" {
		t.Fatalf("unexpected iterations %q", parts[0])
	}
	if len(parts[1]) != 2*saltBytes {
		t.Fatalf("unexpected salt length %d", len(parts[1]))
	}
	if len(parts[2]) != 2*derivedKeyLen {
		t.Fatalf("unexpected digest length %d", len(parts[2]))
	}
	if !VerifyPassword("correct horse", stored) {
		t.Fatal("fresh credential does not verify")
	}
	if VerifyPassword("correct horsE", stored) {
		t.Fatal("wrong password verified")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyKnownVector(t *testing.T) {
	stored := "10000:" + vectorSalt + ":" + vectorDigest
	if !VerifyPassword("correct horse", stored) {
		t.Fatal("known vector did not verify")
	}
	if !VerifyPassword("correct horse", "  "+stored+"\n") {
		t.Fatal("surrounding whitespace should be ignored")
	}
	if VerifyPassword("battery staple", stored) {
		t.Fatal("wrong password verified against known vector")
	}
}

func TestVerifyLegacyDigest(t *testing.T) {
	if !VerifyPassword("password", legacyDigest) {
		t.Fatal("legacy digest did not verify")
	}
	if !VerifyPassword("password", strings.ToUpper(legacyDigest)+" ") {
		t.Fatal("legacy digest should tolerate case and padding")
	}
	if VerifyPassword("Password", legacyDigest) {
		t.Fatal("legacy digest verified wrong password")
	}
}

func TestVerifyMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"nothex",
		legacyDigest[:40],
		"10000:" + vectorSalt,
		"10000:" + vectorSalt + ":" + vectorDigest + ":extra",
		"abc:" + vectorSalt + ":" + vectorDigest,
		"0:" + vectorSalt + ":" + vectorDigest,
		"-5:" + vectorSalt + ":" + vectorDigest,
		"10000::" + vectorDigest,
		"10000:" + vectorSalt + ":zz",
		"10000:" + vectorSalt + ":" + vectorDigest[:64],
	}
	for _, stored := range cases {
		if VerifyPassword("correct horse", stored) {
			t.Fatalf("malformed credential %q verified", stored)
		}
	}
}

func TestParseCredentialRoundTrip(t *testing.T) {
	stored := "10000:" + vectorSalt + ":" + vectorDigest
	cred, err := ParseCredential(stored)
	if err != nil {
		t.Fatalf("ParseCredential: %v", err)
	}
	if cred.Scheme != SchemePBKDF2SHA512 || cred.Iterations != 10000 || cred.Salt != vectorSalt {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.String() != stored {
		t.Fatalf("String()=%q, want %q", cred.String(), stored)
	}
	if cred.Scheme.String() != "pbkdf2-sha512" {
		t.Fatalf("unexpected scheme name %q", cred.Scheme)
	}

	legacy, err := ParseCredential(legacyDigest)
	if err != nil {
		t.Fatalf("ParseCredential legacy: %v", err)
	}
	if legacy.Scheme != SchemeLegacySHA256 || legacy.String() != legacyDigest {
		t.Fatalf("unexpected legacy credential %+v", legacy)
	}
}

func TestNeedsRehash(t *testing.T) {
	current := "10000:" + vectorSalt + ":" + vectorDigest
	if NeedsRehash(current, DefaultIterations) {
		t.Fatal("current credential flagged for rehash")
	}
	if !NeedsRehash(current, 20000) {
		t.Fatal("under-iterated credential not flagged")
	}
	if !NeedsRehash(legacyDigest, DefaultIterations) {
		t.Fatal("legacy credential not flagged")
	}
	if NeedsRehash("garbage", DefaultIterations) {
		t.Fatal("malformed credential flagged")
	}
}
