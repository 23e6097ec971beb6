// Package resettoken makes stateless password reset tokens.
//
// A token is "<issued base36>-<mac>". The mac covers the user's id, password
// hash, last login and the issue time, so setting a new password or logging in
// invalidates every token handed out before.
package resettoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/car_rental/internal/models"
)

const macLen = 32

var ErrInvalidUID = errors.New("invalid uid")

type Generator struct {
	Secret  []byte
	Timeout time.Duration
	Now     func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) Make(u *models.User) string {
	return g.makeAt(u, g.now().Unix())
}

func (g *Generator) Check(u *models.User, token string) bool {
	if u == nil || token == "" {
		return false
	}
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok {
		return false
	}
	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil || ts < 0 {
		return false
	}

	want := g.makeAt(u, ts)
	if subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
		return false
	}

	age := g.now().Unix() - ts
	if age < 0 {
		return false
	}
	return g.Timeout <= 0 || time.Duration(age)*time.Second <= g.Timeout
}

func (g *Generator) makeAt(u *models.User, ts int64) string {
	var login string
	if u.LastLogin != nil {
		login = strconv.FormatInt(u.LastLogin.UTC().Truncate(time.Second).Unix(), 10)
	}

	mac := hmac.New(sha256.New, g.Secret)
	mac.Write([]byte(strconv.FormatUint(uint64(u.ID), 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(u.PasswordHash))
	mac.Write([]byte{0})
	mac.Write([]byte(login))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(u.Email))

	sum := hex.EncodeToString(mac.Sum(nil))
	return strconv.FormatInt(ts, 36) + "-" + sum[:macLen]
}

// EncodeUID renders a user id for use in reset links.
func EncodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

func DecodeUID(s string) (uint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return 0, ErrInvalidUID
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidUID
	}
	return uint(id), nil
}
