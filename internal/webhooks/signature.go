package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Headers set on every signed delivery.
const (
	HeaderSignature  = "X-Signature"
	HeaderTimestamp  = "X-Signature-Timestamp"
	HeaderEventType  = "X-Event-Type"
	HeaderDeliveryID = "X-Delivery-Id"
)

// SignHMAC returns lowercase hex of HMAC-SHA256 over "<ts>.<body>".
func SignHMAC(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a signature made by SignHMAC and rejects timestamps more
// than tolerance away from now.
func VerifyHMAC(secret string, ts int64, body []byte, provided string, now time.Time, tolerance time.Duration) bool {
	if d := now.Sub(time.Unix(ts, 0)); d > tolerance || d < -tolerance {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignHMAC(secret, ts, body))
	return hmac.Equal(want, got)
}
