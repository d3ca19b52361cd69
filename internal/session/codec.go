package session

import (
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// hkdfInfo は鍵導出のコンテキスト文字列。形式を変える場合はバージョンを上げる。
const hkdfInfo = "authdesk session cookie v1"

var errInvalidCookie = errors.New("invalid session cookie")

// payload はCookieに封緘されるJSON。
type payload struct {
	UserID       string `json:"uid"`
	AccessToken  string `json:"at,omitempty"`
	RefreshToken string `json:"rt,omitempty"`
	IssuedAt     int64  `json:"iat"`
}

// codec はXChaCha20-Poly1305でペイロードを暗号化・認証する。
// Cookie名を追加データとして結合し、別名のCookieへの流用を防ぐ。
type codec struct {
	keys [][]byte
	ad   []byte
}

func newCodec(secrets []string, cookieName string) (*codec, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("at least one secret is required")
	}

	keys := make([][]byte, 0, len(secrets))
	for i, secret := range secrets {
		if secret == "" {
			return nil, fmt.Errorf("secret %d is empty", i)
		}
		key, err := hkdf.Key(sha256.New, []byte(secret), nil, hkdfInfo, chacha20poly1305.KeySize)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
		keys = append(keys, key)
	}

	return &codec{keys: keys, ad: []byte(cookieName)}, nil
}

// seal は先頭の鍵でペイロードを封緘し、base64url文字列を返す。
// 出力形式: base64url(nonce || ciphertext)
func (c *codec) seal(p payload) (string, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.NewX(c.keys[0])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, c.ad)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// open は全ての鍵で順に開封を試みる。
func (c *codec) open(value string) (payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return payload{}, errInvalidCookie
	}
	if len(raw) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return payload{}, errInvalidCookie
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	for _, key := range c.keys {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return payload{}, err
		}
		plaintext, err := aead.Open(nil, nonce, ciphertext, c.ad)
		if err != nil {
			continue
		}

		var p payload
		if err := json.Unmarshal(plaintext, &p); err != nil {
			return payload{}, errInvalidCookie
		}
		return p, nil
	}

	return payload{}, errInvalidCookie
}
