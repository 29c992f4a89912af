package storage

import (
	"encoding/base64"
	"testing"
)

func TestEncryption(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("Failed to create encryption: %v", err)
	}

	plaintext := []byte("evolink-secret-key-12345")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}

	if string(decrypted) != string(plaintext) {
		t.Errorf("Decrypted text doesn't match original. Got %s, want %s", decrypted, plaintext)
	}

	// Nonces are random, so sealing twice differs
	again, _ := enc.Encrypt(plaintext)
	if again == ciphertext {
		t.Error("Expected distinct ciphertexts for the same plaintext")
	}
}

func TestEncryptionFromBase64(t *testing.T) {
	keyBase64, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	enc, err := NewEncryptionFromBase64(keyBase64)
	if err != nil {
		t.Fatalf("Failed to create encryption from base64: %v", err)
	}

	ciphertext, err := enc.Encrypt([]byte("test-data"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if string(decrypted) != "test-data" {
		t.Errorf("Decrypted text doesn't match original")
	}

	if _, err := NewEncryptionFromBase64(""); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := NewEncryptionFromBase64("not base64!"); err == nil {
		t.Error("Expected error for malformed key")
	}
}

func TestEncryptionFromSecret(t *testing.T) {
	a, err := NewEncryptionFromSecret("correct horse battery staple")
	if err != nil {
		t.Fatalf("Failed to derive key: %v", err)
	}
	b, _ := NewEncryptionFromSecret("correct horse battery staple")
	other, _ := NewEncryptionFromSecret("another passphrase")

	sealed, err := a.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	// Same secret derives the same key
	if got, err := b.Decrypt(sealed); err != nil || string(got) != "payload" {
		t.Errorf("Expected decrypt with same secret to succeed, got %q, %v", got, err)
	}
	if _, err := other.Decrypt(sealed); err == nil {
		t.Error("Expected decrypt with a different secret to fail")
	}

	if _, err := NewEncryptionFromSecret(""); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestSealCredentials(t *testing.T) {
	enc, _ := NewEncryption(make([]byte, 32))

	creds := VendorCredentials{APIKey: "fal-key", BaseURL: "https://queue.fal.run"}
	sealed, err := enc.SealCredentials(creds)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	opened, err := enc.OpenCredentials(sealed)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if opened != creds {
		t.Errorf("OpenCredentials() = %+v, want %+v", opened, creds)
	}

	empty, err := enc.SealCredentials(VendorCredentials{})
	if err != nil || empty != "" {
		t.Errorf("Expected empty credentials to seal to \"\", got %q, %v", empty, err)
	}
	opened, err = enc.OpenCredentials("")
	if err != nil || opened != (VendorCredentials{}) {
		t.Errorf("Expected zero credentials for empty input, got %+v, %v", opened, err)
	}
}

func TestGenerateKey(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		key, err := GenerateKey(size)
		if err != nil {
			t.Fatalf("GenerateKey(%d) failed: %v", size, err)
		}
		if _, err := NewEncryptionFromBase64(key); err != nil {
			t.Errorf("Generated key of size %d is unusable: %v", size, err)
		}
	}

	if _, err := GenerateKey(20); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestInvalidKeySize(t *testing.T) {
	for _, size := range []int{0, 8, 20, 64} {
		if _, err := NewEncryption(make([]byte, size)); err == nil {
			t.Errorf("Expected error for key size %d", size)
		}
	}
}

func TestDecryptTampered(t *testing.T) {
	enc, _ := NewEncryption(make([]byte, 32))

	if _, err := enc.Decrypt("AAAA"); err == nil {
		t.Error("Expected error for short ciphertext")
	}

	sealed, _ := enc.Encrypt([]byte("secret"))
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("Expected error for tampered ciphertext")
	}
}
