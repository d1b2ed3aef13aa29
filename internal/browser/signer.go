// Package browser provides a client for the headless browser engine.
package browser

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer creates HMAC signatures for browser engine requests.
type Signer struct {
	secret []byte
}

// NewSigner creates a new HMAC signer with the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{
		secret: []byte(secret),
	}
}

// SignatureHeaders represents the headers to include in a signed request.
type SignatureHeaders struct {
	Signature string
	Timestamp string
	TenantID  string
	Tier      string
	JobID     string
}

// Sign creates a signature for the given request parameters.
// Signature format: HMAC-SHA256(timestamp|tenantID|tier|jobID|bodyHash)
func (s *Signer) Sign(tenantID, tier, jobID string, body []byte) SignatureHeaders {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	bodyHash := sha256.Sum256(body)
	message := timestamp + "|" + tenantID + "|" + tier + "|" + jobID + "|" + hex.EncodeToString(bodyHash[:])

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(message))
	signature := hex.EncodeToString(h.Sum(nil))

	return SignatureHeaders{
		Signature: signature,
		Timestamp: timestamp,
		TenantID:  tenantID,
		Tier:      tier,
		JobID:     jobID,
	}
}

// Verify verifies a signature against the expected parameters.
// Used by the engine to validate incoming requests; kept here so both
// sides share one implementation.
func (s *Signer) Verify(signature, timestamp, tenantID, tier, jobID string, body []byte) bool {
	// Reject stale timestamps to limit replay
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if time.Since(time.Unix(ts, 0)) > 5*time.Minute {
		return false
	}

	bodyHash := sha256.Sum256(body)
	message := timestamp + "|" + tenantID + "|" + tier + "|" + jobID + "|" + hex.EncodeToString(bodyHash[:])

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(message))
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
