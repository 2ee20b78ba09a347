package wire

import "testing"

func TestDeriveSharedSecretIsSymmetric(t *testing.T) {
	privA, pubA := GenerateKeyPair()
	privB, pubB := GenerateKeyPair()
	nonce := GenerateNonce()

	keyA, err := DeriveSharedSecret(privA, pubB, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret (A): %v", err)
	}
	keyB, err := DeriveSharedSecret(privB, pubA, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret (B): %v", err)
	}
	if keyA == nil || keyB == nil || string(keyA) != string(keyB) {
		t.Fatalf("derived keys do not match: A=%x B=%x", keyA, keyB)
	}
}

func TestDeriveSharedSecretDifferentNoncesDiffer(t *testing.T) {
	privA, _ := GenerateKeyPair()
	_, pubB := GenerateKeyPair()

	key1, err := DeriveSharedSecret(privA, pubB, GenerateNonce())
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}
	key2, err := DeriveSharedSecret(privA, pubB, GenerateNonce())
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}
	if string(key1) == string(key2) {
		t.Fatalf("two different nonces produced the same derived key")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	priv, _ := GenerateKeyPair()
	_, peerPub := GenerateKeyPair()
	nonce := GenerateNonce()

	key, err := DeriveSharedSecret(priv, peerPub, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}

	plaintext := []byte("the quick brown fox")
	sealed, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if string(sealed) == string(plaintext) {
		t.Fatalf("Seal returned the plaintext unchanged")
	}

	opened, err := Open(key, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("Open = %q, want %q", opened, plaintext)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	priv, _ := GenerateKeyPair()
	_, peerPub := GenerateKeyPair()
	nonce := GenerateNonce()
	key, err := DeriveSharedSecret(priv, peerPub, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}

	sealed, err := Seal(key, []byte("authentic"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF // flip a bit in the auth tag

	if _, err := Open(key, sealed); err == nil {
		t.Fatalf("Open accepted a tampered ciphertext")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	priv, _ := GenerateKeyPair()
	_, peerPub := GenerateKeyPair()
	nonce := GenerateNonce()
	key, err := DeriveSharedSecret(priv, peerPub, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}
	sealed, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	otherPriv, _ := GenerateKeyPair()
	_, otherPeerPub := GenerateKeyPair()
	wrongKey, err := DeriveSharedSecret(otherPriv, otherPeerPub, nonce)
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}

	if _, err := Open(wrongKey, sealed); err == nil {
		t.Fatalf("Open succeeded with the wrong key")
	}
}

func TestOpenRejectsUndersizedPayload(t *testing.T) {
	priv, _ := GenerateKeyPair()
	_, peerPub := GenerateKeyPair()
	key, err := DeriveSharedSecret(priv, peerPub, GenerateNonce())
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}
	if _, err := Open(key, []byte("short")); err == nil {
		t.Fatalf("Open accepted a payload shorter than its nonce")
	}
}

func TestGenerateKeyPairProducesClampedKeys(t *testing.T) {
	priv, pub := GenerateKeyPair()
	if priv[0]&7 != 0 {
		t.Fatalf("private key not clamped: low bits of byte 0 set")
	}
	if priv[31]&0x80 != 0 || priv[31]&0x40 == 0 {
		t.Fatalf("private key not clamped: high bits of byte 31 wrong")
	}
	var zero [32]byte
	if pub == zero {
		t.Fatalf("public key is all-zero, GenerateKeyPair likely broken")
	}
}
