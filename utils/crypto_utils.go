package utils

import (
	"crypto/sha512"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/ripemd160"
)

// Address layout: "00" version prefix, 40 hex chars of RIPEMD-160, 8 hex chars
// of checksum.
const ADDRESS_LEN = 2 + 40 + 8

// GenerateKeyPair generates a new secp256k1 key pair.
func GenerateKeyPair() (*btcec.PrivateKey, *btcec.PublicKey, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return sk, sk.PubKey(), nil
}

// PrivateKeyToBytes returns the 32 byte scalar.
func PrivateKeyToBytes(sk *btcec.PrivateKey) []byte {
	return sk.Serialize()
}

// PublicKeyToBytes returns the compressed 33 byte encoding.
func PublicKeyToBytes(pk *btcec.PublicKey) []byte {
	return pk.SerializeCompressed()
}

func BytesToPrivateKey(b []byte) (*btcec.PrivateKey, error) {
	if len(b) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	sk, _ := btcec.PrivKeyFromBytes(b)
	return sk, nil
}

func BytesToPublicKey(b []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(b)
}

// Hash message using SHA256
func SHA256(msg []byte) []byte {
	digest := sha256.Sum256(msg)
	return digest[:]
}

// Hash message using SHA512
func SHA512(msg []byte) []byte {
	digest := sha512.Sum512(msg)
	return digest[:]
}

// Sign a message's SHA256 digest with provided private key.
func Sign(msg []byte, sk *btcec.PrivateKey) []byte {
	sig := ecdsa.Sign(sk, SHA256(msg))
	return sig.Serialize()
}

// Verify the given DER signature matches the message.
func Verify(msg []byte, pk *btcec.PublicKey, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(SHA256(msg), pk)
}

// PublicKeyToAddress derives the account address of a serialized public key.
func PublicKeyToAddress(pk []byte) string {
	h := ripemd160.New()
	h.Write(SHA256(pk))
	body := "00" + BytesToHex(h.Sum(nil))
	return body + addressChecksum(body)
}

// IsValidAddress checks the version prefix, length and checksum.
func IsValidAddress(addr string) bool {
	if len(addr) != ADDRESS_LEN || addr[:2] != "00" {
		return false
	}
	body := addr[:ADDRESS_LEN-8]
	return addr[ADDRESS_LEN-8:] == addressChecksum(body)
}

func addressChecksum(body string) string {
	return BytesToHex(SHA256(SHA256([]byte(body))))[:8]
}
