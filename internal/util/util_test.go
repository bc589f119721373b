package util

import (
	"bytes"
	"testing"
)

func TestBytes(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}

	copied := CopyBytes(a)
	if !bytes.Equal(copied, a) {
		t.Error("CopyBytes failed")
	}
	copied[0] = 0xFF
	if a[0] == 0xFF {
		t.Error("CopyBytes should return a new slice")
	}

	WipeBytes(copied)
	if !bytes.Equal(copied, []byte{0, 0, 0}) {
		t.Errorf("WipeBytes left %v", copied)
	}
}

func TestRandom(t *testing.T) {
	t.Run("RandomBytes", func(t *testing.T) {
		b1, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		b2, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		if len(b1) != 32 {
			t.Errorf("expected 32 bytes, got %d", len(b1))
		}
		if bytes.Equal(b1, b2) {
			t.Error("RandomBytes should produce different outputs")
		}
	})

	t.Run("RandomHex", func(t *testing.T) {
		s, err := RandomHex(24)
		if err != nil {
			t.Fatalf("RandomHex failed: %v", err)
		}
		if len(s) != 48 {
			t.Errorf("expected 48 characters, got %d", len(s))
		}
		for _, r := range s {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
				t.Fatalf("unexpected character %q in %s", r, s)
			}
		}
	})
}
