// Package seal protects archived snapshot objects: it encrypts them to age
// recipients and signs them with an Ed25519 key derived from an age secret
// key.
package seal

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"
)

// Sealer encrypts and signs archive payloads. Either half is optional.
type Sealer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	recipients []age.Recipient
}

// New builds a Sealer. secretKey is an AGE-SECRET-KEY-1... string used for
// signing; recipients are age1... X25519 recipients used for encryption.
// Blank inputs disable the matching half.
func New(secretKey string, recipients []string) (*Sealer, error) {
	s := &Sealer{}

	if secret := strings.TrimSpace(secretKey); secret != "" {
		seed, err := decodeAgeSecretKey(secret)
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		s.privateKey = ed25519.NewKeyFromSeed(seed)
		s.publicKey = s.privateKey.Public().(ed25519.PublicKey)
	}

	for _, raw := range recipients {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		r, err := age.ParseX25519Recipient(raw)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", raw, err)
		}
		s.recipients = append(s.recipients, r)
	}

	return s, nil
}

// Encrypts reports whether Seal encrypts payloads.
func (s *Sealer) Encrypts() bool {
	return s != nil && len(s.recipients) > 0
}

// Signs reports whether Sign produces signatures.
func (s *Sealer) Signs() bool {
	return s != nil && len(s.privateKey) > 0
}

// Seal encrypts payload to the configured recipients. Without recipients the
// payload is returned unchanged.
func (s *Sealer) Seal(payload []byte) ([]byte, error) {
	if !s.Encrypts() {
		return payload, nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipients...)
	if err != nil {
		return nil, fmt.Errorf("start encryption: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Sign returns a base64 Ed25519 signature over payload.
func (s *Sealer) Sign(payload []byte) (string, error) {
	if !s.Signs() {
		return "", errors.New("sealer configured without signing key")
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.privateKey, payload)), nil
}

// Verify checks a base64 signature produced by Sign.
func (s *Sealer) Verify(payload []byte, signature string) error {
	if s == nil || len(s.publicKey) == 0 {
		return errors.New("no public key available for verification")
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}
	if !ed25519.Verify(s.publicKey, payload, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// PublicKeyBase64 returns the signing public key in base64 form.
func (s *Sealer) PublicKeyBase64() string {
	if s == nil || len(s.publicKey) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.publicKey)
}

func decodeAgeSecretKey(raw string) ([]byte, error) {
	hrp, data, err := bech32.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, "age-secret-key-") {
		return nil, fmt.Errorf("unexpected hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(decoded))
	}
	return decoded, nil
}
