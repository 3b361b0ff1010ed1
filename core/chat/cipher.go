package chat

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const roomKeySalt = "masomo.chat.room-key.v1"

// Cipher encrypts message content at rest with a room-scoped key.
type Cipher interface {
	Encrypt(plaintext, roomID string) (string, error)
	Decrypt(ciphertext, roomID string) (string, error)
}

// AESCipher derives a per-room AES-256 key from a master secret (HKDF-SHA256, info = room ID)
// and seals messages with AES-GCM, binding the room ID as additional data.
// Output is base64(nonce || sealed). It holds no mutable state and is safe for concurrent use.
type AESCipher struct {
	master []byte
}

var _ Cipher = (*AESCipher)(nil)

func NewAESCipher(masterSecret string) (*AESCipher, error) {
	if masterSecret == "" {
		return nil, errors.New("chat: empty encryption key")
	}
	return &AESCipher{master: []byte(masterSecret)}, nil
}

func (c *AESCipher) aead(roomID string) (cipher.AEAD, error) {
	if roomID == "" {
		return nil, errors.New("empty room id")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.master, []byte(roomKeySalt), []byte(roomID)), key); err != nil {
		return nil, errors.Wrap(err, "deriving room key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *AESCipher) Encrypt(plaintext, roomID string) (string, error) {
	gcm, err := c.aead(roomID)
	if err != nil {
		return "", &EncryptionError{RoomID: roomID, Err: err}
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", &EncryptionError{RoomID: roomID, Err: errors.Wrap(err, "generating nonce")}
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(roomID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESCipher) Decrypt(ciphertext, roomID string) (string, error) {
	gcm, err := c.aead(roomID)
	if err != nil {
		return "", &DecryptionError{RoomID: roomID, Err: err}
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptionError{RoomID: roomID, Err: errors.Wrap(err, "decoding ciphertext")}
	}
	ns := gcm.NonceSize()
	if len(raw) < ns+gcm.Overhead() {
		return "", &DecryptionError{RoomID: roomID, Err: errors.New("ciphertext too short")}
	}
	plain, err := gcm.Open(nil, raw[:ns], raw[ns:], []byte(roomID))
	if err != nil {
		return "", &DecryptionError{RoomID: roomID, Err: err}
	}
	return string(plain), nil
}
