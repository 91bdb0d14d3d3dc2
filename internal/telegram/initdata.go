// Package telegram validates Telegram WebApp init_data.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash = errors.New("init_data: hash is missing")
	ErrBadHash     = errors.New("init_data: hash mismatch")
	ErrExpired     = errors.New("init_data: auth_date is too old")
	ErrNoUser      = errors.New("init_data: user is missing")
)

// MaxAge is how old auth_date may be before init_data is rejected.
const MaxAge = time.Hour

// allowed clock skew into the future
const maxSkew = 5 * time.Minute

type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// InitData is the verified part of init_data the backend uses.
type InitData struct {
	User       WebAppUser
	StartParam string
	AuthDate   time.Time
}

// Validate checks the init_data signature and freshness.
func Validate(initData, botToken string, now time.Time) (*InitData, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	values.Del("hash")

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrBadHash
	}
	if !hmac.Equal(Sign(values, botToken), provided) {
		return nil, ErrBadHash
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, ErrExpired
	}
	at := time.Unix(authDate, 0)
	if now.Sub(at) > MaxAge || at.Sub(now) > maxSkew {
		return nil, ErrExpired
	}

	raw := values.Get("user")
	if raw == "" {
		return nil, ErrNoUser
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, err
	}
	if user.ID <= 0 {
		return nil, ErrNoUser
	}

	return &InitData{
		User:       user,
		StartParam: values.Get("start_param"),
		AuthDate:   at,
	}, nil
}

// Sign computes the init_data hash over values (without "hash").
func Sign(values url.Values, botToken string) []byte {
	dataCheck := make([]string, 0, len(values))
	for k, v := range values {
		dataCheck = append(dataCheck, k+"="+strings.Join(v, ""))
	}
	sort.Strings(dataCheck)

	// secret_key = HMAC_SHA256("WebAppData", bot_token)
	key := hmac.New(sha256.New, []byte("WebAppData"))
	key.Write([]byte(botToken))

	h := hmac.New(sha256.New, key.Sum(nil))
	h.Write([]byte(strings.Join(dataCheck, "\n")))
	return h.Sum(nil)
}
