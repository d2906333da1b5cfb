// Пакет crypt — симметричное шифрование адресов локаций образов (at rest).
// AES-256-GCM, ключ задаётся конфигурацией. Применяется слоем репозитория
// прозрачно при чтении/записи таблицы image_locations.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Codec — кодек адресов локаций.
// Нулевой ключ (пустая строка конфигурации) — сквозной режим без шифрования.
type Codec struct {
	// gcm — AEAD cipher; nil в сквозном режиме.
	gcm cipher.AEAD
}

// NewCodec создаёт кодек по строке ключа из конфигурации.
// key — base64-кодированный 32-байтовый ключ AES-256. Если строка не base64
// или не 32 байта — она хешируется SHA-256 до 32 байт (для удобства
// конфигурации). Пустая строка — шифрование отключено.
func NewCodec(key string) (*Codec, error) {
	if key == "" {
		return &Codec{}, nil
	}

	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(keyBytes) != 32 {
		sum := sha256.Sum256([]byte(key))
		keyBytes = sum[:]
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &Codec{gcm: gcm}, nil
}

// Enabled возвращает true, если шифрование включено.
func (c *Codec) Enabled() bool {
	return c.gcm != nil
}

// Encrypt шифрует адрес локации и возвращает base64-строку.
// В сквозном режиме возвращает адрес без изменений.
func (c *Codec) Encrypt(address string) (string, error) {
	if c.gcm == nil {
		return address, nil
	}

	// Уникальный nonce для каждого шифрования (prepended к ciphertext)
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := c.gcm.Seal(nonce, nonce, []byte(address), nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку обратно в адрес локации.
// В сквозном режиме возвращает строку без изменений.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	if c.gcm == nil {
		return encrypted, nil
	}

	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("зашифрованный адрес слишком короткий")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка дешифрования адреса: %w", err)
	}

	return string(plaintext), nil
}
