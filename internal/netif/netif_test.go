package netif

import (
	"errors"
	"testing"
)

func TestLookupLoopback(t *testing.T) {
	st, err := Lookup("lo")
	if err != nil {
		t.Skipf("cannot query netlink in this environment: %v", err)
	}
	if st.Index == 0 {
		t.Error("loopback should have a non-zero index")
	}
}

func TestLookupMissing(t *testing.T) {
	_, err := Lookup("nolink0")
	if err == nil {
		t.Fatal("expected an error for a missing link")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Skipf("netlink unavailable, got %v instead of ErrNotFound", err)
	}
}
