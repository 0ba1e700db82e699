package utils

import (
	"encoding/pem"
	"errors"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
)

const KEY_PEM_TYPE = "EC PRIVATE KEY"

// ParseKeyFile loads the key stored at fPath, or creates and saves a new one
// when createNewKey is set.
func ParseKeyFile(fPath string, createNewKey bool) (*btcec.PrivateKey, error) {
	if fPath == "" {
		return nil, errors.New("file path is missing")
	}
	if createNewKey {
		sk, _, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		if err := SavePrivateKeyToFile(sk, fPath); err != nil {
			return nil, err
		}
		return sk, nil
	}
	return ReadKeyFromFPath(fPath)
}

func SavePrivateKeyToFile(sk *btcec.PrivateKey, fPath string) error {
	data := pem.EncodeToMemory(&pem.Block{
		Type:  KEY_PEM_TYPE,
		Bytes: PrivateKeyToBytes(sk),
	})
	return os.WriteFile(fPath, data, 0600)
}

func ReadKeyFromFPath(fPath string) (*btcec.PrivateKey, error) {
	fileContent, err := os.ReadFile(fPath)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(fileContent)
	if block == nil || block.Type != KEY_PEM_TYPE {
		return nil, errors.New("no private key found in " + fPath)
	}
	return BytesToPrivateKey(block.Bytes)
}
