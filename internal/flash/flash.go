// Package flash carries one-shot user messages across a redirect in a signed
// cookie. A cookie whose signature does not match is treated as absent.
package flash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

const cookieName = "flash"

type Store struct {
	secret []byte
}

func New(secret string) *Store {
	return &Store{secret: []byte(secret)}
}

func (s *Store) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode builds the cookie value payload.signature for msgs.
func (s *Store) Encode(msgs []string) (string, error) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.sign(payload), nil
}

func (s *Store) decode(value string) ([]string, bool) {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok || !hmac.Equal([]byte(s.sign(payload)), []byte(sig)) {
		return nil, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	var msgs []string
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false
	}
	return msgs, true
}

// Add appends msg to the messages already pending on r and writes the cookie.
func (s *Store) Add(w http.ResponseWriter, r *http.Request, msg string) error {
	var msgs []string
	if c, err := r.Cookie(cookieName); err == nil {
		msgs, _ = s.decode(c.Value)
	}
	msgs = append(msgs, msg)

	value, err := s.Encode(msgs)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Pop returns the pending messages and clears the cookie. It returns nil when
// there is no cookie or it fails verification.
func (s *Store) Pop(w http.ResponseWriter, r *http.Request) []string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	msgs, ok := s.decode(c.Value)
	if !ok {
		return nil
	}
	return msgs
}
