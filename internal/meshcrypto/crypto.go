package meshcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
)

const (
	// DefaultKeyB64 is the well-known single byte channel key (0x01).
	DefaultKeyB64 = "AQ=="

	KeySize   = 32
	NonceSize = aes.BlockSize

	shortKeySalt = "Meshtastic"
)

// ErrInvalidKey is returned for keys that are not base64 or decode to zero bytes.
var ErrInvalidKey = errors.New("invalid channel key")

var presetKeys = map[string]string{
	"LongFast":     DefaultKeyB64,
	"LongSlow":     DefaultKeyB64,
	"LongModerate": DefaultKeyB64,
	"MediumFast":   DefaultKeyB64,
	"MediumSlow":   DefaultKeyB64,
	"ShortFast":    DefaultKeyB64,
	"ShortSlow":    DefaultKeyB64,
	"ShortTurbo":   DefaultKeyB64,
}

// KeyForPreset returns the base64 PSK used by a channel preset.
func KeyForPreset(name string) string {
	if key, ok := presetKeys[strings.TrimSpace(name)]; ok {
		return key
	}

	return DefaultKeyB64
}

// DeriveKey expands raw PSK material into an AES-256 key.
func DeriveKey(raw []byte) ([]byte, bool) {
	switch len(raw) {
	case 0:
		return nil, false
	case KeySize:
		out := make([]byte, KeySize)
		copy(out, raw)

		return out, true
	case 1:
		sum := sha256.Sum256(append([]byte(shortKeySalt), raw...))

		return sum[:], true
	default:
		// 16 byte keys and any other length are hashed directly.
		sum := sha256.Sum256(raw)

		return sum[:], true
	}
}

// Nonce builds the CTR counter block: LE64(packetID) || LE32(senderID) || 0x00000000.
func Nonce(packetID uint64, senderID uint32) [NonceSize]byte {
	var nonce [NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[0:8], packetID)
	binary.LittleEndian.PutUint32(nonce[8:12], senderID)

	return nonce
}

// Cipher holds the derived channel key. A Cipher without a key passes data through.
type Cipher struct {
	mu     sync.RWMutex
	key    []byte
	block  cipher.Block
	keyB64 string
}

func NewCipher(keyB64 string) (*Cipher, error) {
	c := &Cipher{}
	if !c.SetKey(keyB64) {
		return nil, ErrInvalidKey
	}

	return c, nil
}

// SetKey installs a base64 PSK. Empty or "none" disables encryption.
// Malformed material is rejected and the previous key stays active.
func (c *Cipher) SetKey(keyB64 string) bool {
	keyB64 = strings.TrimSpace(keyB64)
	if keyB64 == "" || strings.EqualFold(keyB64, "none") {
		c.mu.Lock()
		c.key, c.block, c.keyB64 = nil, nil, keyB64
		c.mu.Unlock()

		return true
	}

	raw, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(raw) == 0 {
		return false
	}
	key, ok := DeriveKey(raw)
	if !ok {
		return false
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.key, c.block, c.keyB64 = key, block, keyB64
	c.mu.Unlock()

	return true
}

// KeyB64 returns the configured key as it was supplied.
func (c *Cipher) KeyB64() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.keyB64
}

func (c *Cipher) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.block != nil
}

// DerivedKey returns a copy of the active key, or nil when encryption is off.
func (c *Cipher) DerivedKey() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.key == nil {
		return nil
	}

	return append([]byte(nil), c.key...)
}

func (c *Cipher) Decrypt(data []byte, packetID uint64, senderID uint32) []byte {
	return c.xorKeyStream(data, packetID, senderID)
}

func (c *Cipher) Encrypt(plain []byte, packetID uint64, senderID uint32) []byte {
	return c.xorKeyStream(plain, packetID, senderID)
}

func (c *Cipher) xorKeyStream(in []byte, packetID uint64, senderID uint32) (out []byte) {
	c.mu.RLock()
	block := c.block
	c.mu.RUnlock()

	if block == nil {
		return in
	}

	defer func() {
		if r := recover(); r != nil {
			out = []byte{}
		}
	}()

	nonce := Nonce(packetID, senderID)
	out = make([]byte, len(in))
	cipher.NewCTR(block, nonce[:]).XORKeyStream(out, in)

	return out
}
