package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Header names set on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
	HeaderEvent     = "X-Webhook-Event"
)

// Signature authenticates a payload. The MAC covers "timestamp.payload" so a
// captured request cannot be replayed outside the receiver's tolerance window.
type Signature struct {
	Value     string
	Timestamp int64
}

// Apply writes the signature headers to h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
}

// Sign computes the HMAC-SHA256 signature of payload at the given time.
func Sign(secret string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return Signature{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	ts := at.Unix()
	return Signature{Value: mac(secret, ts, payload), Timestamp: ts}, nil
}

// Verify checks sig against payload. A positive tolerance rejects signatures
// older than tolerance or more than a minute in the future, measured from now.
func Verify(secret string, payload []byte, sig Signature, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if sig.Value == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > tolerance || age < -time.Minute {
			return fmt.Errorf("%w: age %v", ErrSignatureExpired, age)
		}
	}

	expected := mac(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// ParseSignature reads the signature headers of an incoming delivery.
func ParseSignature(h http.Header) (Signature, error) {
	value := h.Get(HeaderSignature)
	raw := h.Get(HeaderTimestamp)
	if value == "" || raw == "" {
		return Signature{}, fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidSignature, raw)
	}
	return Signature{Value: value, Timestamp: ts}, nil
}

func mac(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte{'.'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
