package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials are the L2 API credentials derived from the wallet key.
type Credentials struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"` // url-safe base64
	Passphrase string `json:"passphrase"`
}

// Valid reports whether every field is set.
func (c Credentials) Valid() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// L2Headers returns the headers authenticating a CLOB request at the
// current time.
func (c Credentials) L2Headers(address, method, path, body string) (map[string]string, error) {
	return c.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with an explicit Unix timestamp. The signature is
// HMAC-SHA256(secret, timestamp+METHOD+path+body) in url-safe base64.
func (c Credentials) L2HeadersAt(address, method, path, body string, unixTS int64) (map[string]string, error) {
	secret, err := decodeSecret(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("crypto/hmac: decode secret: %w", err)
	}
	ts := strconv.FormatInt(unixTS, 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + strings.ToUpper(method) + path + body))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// L1Headers authenticates key derivation with a wallet signature.
func (s *Signer) L1Headers(unixTS, nonce int64) (map[string]string, error) {
	ts := strconv.FormatInt(unixTS, 10)
	sig, err := s.SignAuthMessage(ts, nonce)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}, nil
}

// String returns a redacted form suitable for logging.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

// decodeSecret accepts url-safe or standard base64, padded or not.
func decodeSecret(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("secret is not base64")
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
