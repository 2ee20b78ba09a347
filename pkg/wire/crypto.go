package wire

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// GenerateKeyPair creates a new X25519 key pair for the handshake key
// exchange. Returns a properly clamped private key and its corresponding
// public key.
func GenerateKeyPair() (privateKey [32]byte, publicKey [32]byte) {
	io.ReadFull(rand.Reader, privateKey[:])

	// Clamp the private key per the X25519 spec.
	privateKey[0] &= 248
	privateKey[31] &= 127
	privateKey[31] |= 64

	pub, _ := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	copy(publicKey[:], pub)
	return privateKey, publicKey
}

// GenerateNonce creates a random nonce sized for XChaCha20-Poly1305 and for
// inclusion in a HandshakePacket.
func GenerateNonce() [24]byte {
	var nonce [24]byte
	io.ReadFull(rand.Reader, nonce[:])
	return nonce
}

// DeriveSharedSecret performs the X25519 exchange and an HKDF-SHA3
// derivation over the handshake nonce, producing the ChaCha20-Poly1305 key
// both sides of a Connected session use to seal/open Data payloads.
func DeriveSharedSecret(privateKey [32]byte, peerPublicKey [32]byte, nonce [24]byte) ([]byte, error) {
	sharedSecret, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha3.New256, sharedSecret, nonce[:], nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal authenticates and encrypts plaintext under key, returning
// (nonce || ciphertext || tag).
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a value produced by Seal.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, &ErrMalformed{Reason: "sealed payload shorter than its nonce"}
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	body := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, body, nil)
}
