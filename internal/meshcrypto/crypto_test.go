package meshcrypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestNonce_Layout(t *testing.T) {
	nonce := Nonce(0x0102030405060708, 0xaabbccdd)
	want := []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xdd, 0xcc, 0xbb, 0xaa,
		0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(nonce[:], want) {
		t.Fatalf("unexpected nonce: %x", nonce)
	}
}

func TestNonce_DeterministicWithZeroTail(t *testing.T) {
	cases := []struct {
		packetID uint64
		sender   uint32
	}{
		{0, 0},
		{99, 0x12345678},
		{^uint64(0), ^uint32(0)},
	}
	for _, tc := range cases {
		a := Nonce(tc.packetID, tc.sender)
		b := Nonce(tc.packetID, tc.sender)
		if a != b {
			t.Fatalf("expected deterministic nonce for %d/%d", tc.packetID, tc.sender)
		}
		if !bytes.Equal(a[12:16], []byte{0, 0, 0, 0}) {
			t.Fatalf("expected zero tail, got %x", a[12:16])
		}
	}
}

func TestDeriveKey_Lengths(t *testing.T) {
	for _, size := range []int{1, 5, 16, 24, 32, 40} {
		raw := bytes.Repeat([]byte{0x42}, size)
		key, ok := DeriveKey(raw)
		if !ok {
			t.Fatalf("expected key for length %d", size)
		}
		if len(key) != KeySize {
			t.Fatalf("expected %d byte key for length %d, got %d", KeySize, size, len(key))
		}
		again, _ := DeriveKey(raw)
		if !bytes.Equal(key, again) {
			t.Fatalf("expected stable derivation for length %d", size)
		}
	}
}

func TestDeriveKey_Rules(t *testing.T) {
	full := bytes.Repeat([]byte{0x07}, 32)
	key, _ := DeriveKey(full)
	if !bytes.Equal(key, full) {
		t.Fatalf("expected 32 byte key to pass through")
	}

	half := bytes.Repeat([]byte{0x07}, 16)
	key, _ = DeriveKey(half)
	sum := sha256.Sum256(half)
	if !bytes.Equal(key, sum[:]) {
		t.Fatalf("expected 16 byte key to be hashed")
	}

	key, _ = DeriveKey([]byte{0x01})
	salted := sha256.Sum256([]byte("Meshtastic\x01"))
	if !bytes.Equal(key, salted[:]) {
		t.Fatalf("expected single byte key to be hashed with salt")
	}

	if _, ok := DeriveKey(nil); ok {
		t.Fatalf("expected empty key to be absent")
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	keys := []string{
		DefaultKeyB64,
		base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x11}, 16)),
		base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x22}, 32)),
	}
	plain := []byte("the quick brown fox jumps over the lazy dog, twice over")

	for _, k := range keys {
		c, err := NewCipher(k)
		if err != nil {
			t.Fatalf("new cipher %q: %v", k, err)
		}
		enc := c.Encrypt(plain, 4242, 0xdeadbeef)
		if bytes.Equal(enc, plain) {
			t.Fatalf("expected ciphertext to differ for key %q", k)
		}
		dec := c.Decrypt(enc, 4242, 0xdeadbeef)
		if !bytes.Equal(dec, plain) {
			t.Fatalf("round trip mismatch for key %q: %q", k, dec)
		}
		wrong := c.Decrypt(enc, 4243, 0xdeadbeef)
		if bytes.Equal(wrong, plain) {
			t.Fatalf("expected different packet id to produce different plaintext")
		}
	}
}

func TestCipher_NoKeyPassesThrough(t *testing.T) {
	for _, k := range []string{"", "none", "NONE"} {
		c, err := NewCipher(k)
		if err != nil {
			t.Fatalf("new cipher %q: %v", k, err)
		}
		if c.Enabled() {
			t.Fatalf("expected encryption disabled for %q", k)
		}
		in := []byte{1, 2, 3}
		if got := c.Decrypt(in, 1, 2); !bytes.Equal(got, in) {
			t.Fatalf("expected pass-through decrypt, got %x", got)
		}
		if got := c.Encrypt(in, 1, 2); !bytes.Equal(got, in) {
			t.Fatalf("expected pass-through encrypt, got %x", got)
		}
	}
}

func TestCipher_SetKeyRejectsMalformed(t *testing.T) {
	c, err := NewCipher(DefaultKeyB64)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	before := c.DerivedKey()

	if c.SetKey("not base64!!") {
		t.Fatalf("expected malformed base64 to be rejected")
	}
	if c.SetKey("====") {
		t.Fatalf("expected zero length key to be rejected")
	}
	if !bytes.Equal(c.DerivedKey(), before) {
		t.Fatalf("expected previous key to stay active")
	}
	if _, err := NewCipher("%%%"); err == nil {
		t.Fatalf("expected constructor to fail on malformed key")
	}
}

func TestKeyForPreset(t *testing.T) {
	if got := KeyForPreset("LongFast"); got != DefaultKeyB64 {
		t.Fatalf("expected default key for LongFast, got %q", got)
	}
	if got := KeyForPreset("SomethingCustom"); got != DefaultKeyB64 {
		t.Fatalf("expected default key fallback, got %q", got)
	}
}
