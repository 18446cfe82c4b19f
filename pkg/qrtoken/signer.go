package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer creates and validates signed badge tokens. The token is the payload
// encoded into student QR badges: it binds an admission number to an expiry so
// a screenshotted badge cannot be replayed indefinitely.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Generate returns a signed token for the admission number.
func (s *Signer) Generate(admissionNumber string, now time.Time) (string, time.Time, error) {
	if admissionNumber == "" {
		return "", time.Time{}, fmt.Errorf("admission number required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := now.Add(s.ttl)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(admissionNumber))
	signature := s.sign(encoded, expiresAt.Unix())
	token := strings.Join([]string{encoded, strconv.FormatInt(expiresAt.Unix(), 10), signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded admission number.
func (s *Signer) Parse(token string, now time.Time) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}
	encoded, ts, signature := parts[0], parts[1], parts[2]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid token timestamp")
	}

	expected := s.sign(encoded, expUnix)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", fmt.Errorf("invalid token signature")
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("token expired")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode admission number: %w", err)
	}
	return string(raw), nil
}

func (s *Signer) sign(encoded string, expUnix int64) string {
	payload := fmt.Sprintf("%s|%d", encoded, expUnix)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
