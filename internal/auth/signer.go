package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// DefaultTimestampOffset is the fixed number of seconds added to the UTC
// epoch timestamp before signing. The exchange validates the timestamp
// header against this shifted value (IST, UTC+5:30), so the literal offset
// must be preserved even though the result is not itself a UTC timestamp.
const DefaultTimestampOffset = 19800

// Signer handles HMAC-SHA256 signing for Delta Exchange API requests
type Signer struct {
	apiKey    string
	apiSecret string
	offset    int64
	now       func() time.Time
}

// NewSigner creates a new signer with the default timestamp offset
func NewSigner(apiKey, apiSecret string) *Signer {
	return NewSignerWithOffset(apiKey, apiSecret, DefaultTimestampOffset)
}

// NewSignerWithOffset creates a new signer with a custom timestamp offset
func NewSignerWithOffset(apiKey, apiSecret string, offset int64) *Signer {
	return &Signer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		offset:    offset,
		now:       time.Now,
	}
}

// APIKey returns the API key
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Offset returns the timestamp offset in seconds
func (s *Signer) Offset() int64 {
	return s.offset
}

// Timestamp returns the current signing timestamp: whole seconds since the
// UTC epoch plus the configured offset
func (s *Signer) Timestamp() string {
	return strconv.FormatInt(s.now().UTC().Unix()+s.offset, 10)
}

// SignAt generates the HMAC-SHA256 signature for the given request at a
// fixed timestamp. The signed message is the exact byte concatenation
// method + timestamp + path + body, so the body must already be in its
// canonical wire form.
func (s *Signer) SignAt(method, path, body, timestamp string) string {
	h := hmac.New(sha256.New, []byte(s.apiSecret))
	h.Write([]byte(method))
	h.Write([]byte(timestamp))
	h.Write([]byte(path))
	h.Write([]byte(body))

	return hex.EncodeToString(h.Sum(nil))
}

// Sign generates a signature and the timestamp it was computed with.
// Deterministic for fixed inputs within the same second.
func (s *Signer) Sign(method, path, body string) (signature, timestamp string) {
	timestamp = s.Timestamp()
	return s.SignAt(method, path, body, timestamp), timestamp
}

// ValidateSignature verifies a signature against the given request fields
func (s *Signer) ValidateSignature(method, path, body, timestamp, signature string) bool {
	expected := s.SignAt(method, path, body, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
