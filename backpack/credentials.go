// Copyright (c) 2025 BVK Chaitanya

package backpack

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
)

// Credentials holds the Backpack API key pair. Key is the base64 encoded
// ED25519 public key and Secret is the base64 encoded private key seed.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (v *Credentials) Check() error {
	if len(v.Key) == 0 {
		return fmt.Errorf("api key cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.Secret) == 0 {
		return fmt.Errorf("api secret cannot be empty: %w", os.ErrInvalid)
	}
	if _, err := v.privateKey(); err != nil {
		return err
	}
	return nil
}

func (v *Credentials) privateKey() (ed25519.PrivateKey, error) {
	data, err := base64.StdEncoding.DecodeString(v.Secret)
	if err != nil {
		return nil, fmt.Errorf("api secret is not base64 encoded: %w", os.ErrInvalid)
	}
	switch len(data) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	}
	return nil, fmt.Errorf("api secret has unexpected length %d: %w", len(data), os.ErrInvalid)
}
