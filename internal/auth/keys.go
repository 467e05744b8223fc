package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// decodeInlineKey normalizes an inline key value into PEM bytes. Inline keys
// may be a single-line PEM with literal \n escapes or a JSON array of PEM
// lines.
func decodeInlineKey(value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		var lines []string
		if err := json.Unmarshal([]byte(trimmed), &lines); err != nil {
			return nil, fmt.Errorf("inline key is not a valid JSON array: %w", err)
		}
		return []byte(strings.Join(lines, "\n")), nil
	}
	return []byte(strings.ReplaceAll(value, `\n`, "\n")), nil
}

func parsePublicKey(keyData []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an Ed25519 public key")
	}
	return edPub, nil
}

func parsePrivateKey(keyData []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	edPriv, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an Ed25519 private key")
	}
	return edPriv, nil
}

func loadPublicKey(inline, path string) (ed25519.PublicKey, error) {
	if inline != "" {
		data, err := decodeInlineKey(inline)
		if err != nil {
			return nil, err
		}
		return parsePublicKey(data)
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	return parsePublicKey(data)
}

func loadPrivateKey(inline, path string) (ed25519.PrivateKey, error) {
	if inline != "" {
		data, err := decodeInlineKey(inline)
		if err != nil {
			return nil, err
		}
		return parsePrivateKey(data)
	}
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	return parsePrivateKey(data)
}
