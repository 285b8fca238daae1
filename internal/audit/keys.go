package audit

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Key file names inside the keys directory.
const (
	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"
)

// Keys is the ledger signing keypair, persisted as PEM files.
type Keys struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// LoadOrCreateKeys loads the keypair from dir, generating and persisting a
// new one on first use. The private key file is written with mode 0600.
func LoadOrCreateKeys(dir string) (*Keys, error) {
	privPath := filepath.Join(dir, privateKeyFile)

	data, err := os.ReadFile(privPath)
	if os.IsNotExist(err) {
		return generateKeys(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("audit: read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("audit: %s is not PEM", privPath)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("audit: parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("audit: %s is not an Ed25519 key", privPath)
	}

	k := &Keys{priv: priv, pub: priv.Public().(ed25519.PublicKey)}

	// The public key file is derived state; restore it if it went missing.
	pubPath := filepath.Join(dir, publicKeyFile)
	if _, err := os.Stat(pubPath); os.IsNotExist(err) {
		if err := writePublicKey(pubPath, k.pub); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// LoadPublicKey reads a PEM-encoded Ed25519 public key, for verify-only
// callers that must not touch the private key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("audit: %s is not PEM", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("audit: parse public key: %w", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("audit: %s is not an Ed25519 key", path)
	}
	return pub, nil
}

// Sign signs the message with the private key.
func (k *Keys) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Public returns the verification key.
func (k *Keys) Public() ed25519.PublicKey {
	return k.pub
}

// Fingerprint returns a short identifier for the public key: the first
// 16 hex chars of its SHA-256.
func (k *Keys) Fingerprint() string {
	h := sha256.Sum256(k.pub)
	return hex.EncodeToString(h[:])[:16]
}

func generateKeys(dir string) (*Keys, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create keys directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("audit: generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("audit: encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), privPEM, 0600); err != nil {
		return nil, fmt.Errorf("audit: write private key: %w", err)
	}

	if err := writePublicKey(filepath.Join(dir, publicKeyFile), pub); err != nil {
		return nil, err
	}

	return &Keys{priv: priv, pub: pub}, nil
}

func writePublicKey(path string, pub ed25519.PublicKey) error {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("audit: encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(path, pubPEM, 0644); err != nil {
		return fmt.Errorf("audit: write public key: %w", err)
	}
	return nil
}
