package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Razorpay-Signature"

// EventIDHeader carries the gateway's unique id for one event delivery.
const EventIDHeader = "X-Razorpay-Event-Id"

// Verify checks signature against the HMAC-SHA256 of body keyed with secret.
func Verify(body []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return pkgerrors.ErrMissingSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(body, secret))) {
		return pkgerrors.ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex encoded HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
