// Package security manages the token signing secret kept in the home
// directory when none is configured.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretBytes is the length of a generated signing secret.
const SecretBytes = 32

// GenerateSecret returns a random hex-encoded secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SecretPath is where the signing secret lives under home.
func SecretPath(home string) string {
	return filepath.Join(home, "keys", "jwt.secret")
}

// LoadOrCreateSecret loads the signing secret from home/keys/, or
// generates and stores one on first run.
func LoadOrCreateSecret(home string) (string, error) {
	path := SecretPath(home)

	if b, err := os.ReadFile(path); err == nil {
		secret := strings.TrimSpace(string(b))
		if _, err := hex.DecodeString(secret); err != nil || secret == "" {
			return "", fmt.Errorf("corrupt secret %s", path)
		}
		return secret, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read secret: %w", err)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return secret, nil
}
