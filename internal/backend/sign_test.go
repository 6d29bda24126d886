package backend

import (
	"errors"
	"testing"
	"time"
)

var verifyTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"level_percentage":62.5}`)
	ts := "1767268800"

	a := Sign("secret", "sump-controller-1", body, ts)
	b := Sign("secret", "sump-controller-1", body, ts)
	if a != b {
		t.Errorf("same inputs signed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(a))
	}
}

func TestSignVariesWithEveryInput(t *testing.T) {
	body := []byte(`{}`)
	base := Sign("secret", "dev", body, "100")

	if Sign("other", "dev", body, "100") == base {
		t.Error("secret not part of the signature")
	}
	if Sign("secret", "dev2", body, "100") == base {
		t.Error("device id not part of the signature")
	}
	if Sign("secret", "dev", []byte(`{"a":1}`), "100") == base {
		t.Error("body not part of the signature")
	}
	if Sign("secret", "dev", body, "101") == base {
		t.Error("timestamp not part of the signature")
	}
}

func TestVerifyAcceptsOwnSignature(t *testing.T) {
	body := []byte(`{"command":"start"}`)
	ts := "1767268800" // 2026-01-01T12:00:00Z

	sig := Sign("shared", "top-controller-1", body, ts)
	err := Verify("shared", "top-controller-1", body, ts, sig, 5*time.Minute, verifyTime)
	if err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	ts := "1767268800"
	sig := Sign("shared", "dev", []byte(`{"command":"start"}`), ts)

	err := Verify("shared", "dev", []byte(`{"command":"stop"}`), ts, sig, 5*time.Minute, verifyTime)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	ts := "1767268800"
	body := []byte(`{}`)
	sig := Sign("theirs", "dev", body, ts)

	err := Verify("ours", "dev", body, ts, sig, 5*time.Minute, verifyTime)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	old := "1767268200" // ten minutes before verifyTime
	sig := Sign("shared", "dev", body, old)

	err := Verify("shared", "dev", body, old, sig, 5*time.Minute, verifyTime)
	if !errors.Is(err, ErrTimestampSkew) {
		t.Errorf("err = %v, want ErrTimestampSkew", err)
	}

	// The same message inside the window is fine.
	recent := "1767268620" // three minutes before verifyTime
	sig = Sign("shared", "dev", body, recent)
	if err := Verify("shared", "dev", body, recent, sig, 5*time.Minute, verifyTime); err != nil {
		t.Errorf("Verify inside window: %v", err)
	}
}

func TestVerifyRejectsGarbageTimestamp(t *testing.T) {
	err := Verify("shared", "dev", nil, "yesterday", "deadbeef", 5*time.Minute, verifyTime)
	if !errors.Is(err, ErrTimestampSkew) {
		t.Errorf("err = %v, want ErrTimestampSkew", err)
	}
}
