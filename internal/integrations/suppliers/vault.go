package suppliers

import (
	"crypto/rand"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Vault шифрует пакеты креденшалов at rest (XChaCha20-Poly1305).
// Формат блоба: nonce || ciphertext.
type Vault struct {
	key []byte
}

func NewVault(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Vault{key: key}, nil
}

func (v *Vault) Encrypt(creds map[string]string) ([]byte, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, errors.Wrap(err, "marshal credentials")
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, errors.Wrap(err, "new aead")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}

	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (v *Vault) Decrypt(blob []byte) (map[string]string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, errors.Wrap(err, "new aead")
	}
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("credential blob too short")
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt credentials")
	}

	var creds map[string]string
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, errors.Wrap(err, "unmarshal credentials")
	}
	return creds, nil
}
