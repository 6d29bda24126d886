package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Request authentication headers shared by the backend and peer protocols.
const (
	HeaderDeviceID  = "X-Device-ID"
	HeaderAPIKey    = "X-API-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// Verification failures. Both map to HTTP 401 on the receiving side.
var (
	ErrBadSignature  = errors.New("signature mismatch")
	ErrTimestampSkew = errors.New("timestamp outside tolerance")
)

// Sign computes the hex HMAC-SHA256 over device_id, payload and timestamp.
// The timestamp is the decimal unix-seconds string sent in X-Timestamp; it
// is part of the signed material to bound the replay window.
func Sign(secret, deviceID string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(deviceID))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature and its timestamp. Signature
// comparison is constant time.
func Verify(secret, deviceID string, body []byte, timestamp, signature string, tolerance time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", timestamp, ErrTimestampSkew)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return fmt.Errorf("%w: %s", ErrTimestampSkew, skew)
	}
	want := Sign(secret, deviceID, body, timestamp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
