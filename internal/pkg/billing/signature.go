package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VerifyStripeSignature checks a Stripe-Signature header of the form
// "t=<unix>,v1=<hex hmac>" against the exact raw request body. The MAC is
// HMAC-SHA256 over "<t>.<body>"; the raw bytes must be used as received
// because a re-serialized body is not guaranteed byte-identical. Multiple v1
// entries may be present (secret rotation); any match passes. A timestamp
// further than tolerance from now fails with ErrSignatureStale to block
// replay of captured payloads.
func VerifyStripeSignature(payload []byte, signatureHeader, secret string, tolerance time.Duration, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" || strings.TrimSpace(secret) == "" {
		return ErrSignatureInvalid
	}

	var ts time.Time
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			unix, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			ts = time.Unix(unix, 0)
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(v))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}
	if ts.IsZero() || len(candidates) == 0 {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	matched := false
	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			matched = true
		}
	}
	if !matched {
		return ErrSignatureInvalid
	}

	// Tolerance is checked after the MAC so a forged timestamp cannot be
	// distinguished from a forged signature by timing.
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return ErrSignatureStale
	}
	return nil
}

// SignPayload produces a valid Stripe-Signature header for a payload. Used by
// tests and local tooling.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
