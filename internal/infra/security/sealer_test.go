package security

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(strings.Repeat("k", 32))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	payload := []byte(`{"chats":[{"id":"c1","title":"secret"}]}`)
	sealed, err := s.Seal(payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret")) {
		t.Fatal("plaintext visible in sealed payload")
	}
	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Fatalf("round trip mismatch: %s", opened)
	}
}

func TestSealerNoncesDiffer(t *testing.T) {
	s, _ := NewSealer(strings.Repeat("k", 16))
	a, _ := s.Seal([]byte("same"))
	b, _ := s.Seal([]byte("same"))
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same payload are identical")
	}
}

func TestSealerRejectsBadKeys(t *testing.T) {
	for _, n := range []int{0, 8, 15, 17, 31, 33} {
		if _, err := NewSealer(strings.Repeat("k", n)); err == nil {
			t.Errorf("key length %d accepted", n)
		}
	}
	for _, n := range []int{16, 24, 32} {
		if _, err := NewSealer(strings.Repeat("k", n)); err != nil {
			t.Errorf("key length %d rejected: %v", n, err)
		}
	}
}

func TestSealerRejectsTamper(t *testing.T) {
	s, _ := NewSealer(strings.Repeat("k", 32))
	sealed, _ := s.Seal([]byte("payload"))
	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed); err == nil {
		t.Fatal("tampered payload opened")
	}
	if _, err := s.Open([]byte("short")); err == nil {
		t.Fatal("truncated payload opened")
	}
}
