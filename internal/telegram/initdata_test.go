package telegram

import (
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const botToken = "123456:test-bot-token"

func buildInitData(fields map[string]string) string {
	vals := url.Values{}
	for k, v := range fields {
		vals.Set(k, v)
	}
	vals.Set("hash", hex.EncodeToString(Sign(vals, botToken)))
	return vals.Encode()
}

func TestValidate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := strconv.FormatInt(now.Unix(), 10)

	initData := buildInitData(map[string]string{
		"auth_date":   fresh,
		"user":        `{"id":42,"username":"miner","first_name":"M"}`,
		"start_param": "ref_7",
	})

	got, err := Validate(initData, botToken, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.User.ID != 42 || got.User.Username != "miner" {
		t.Fatalf("user = %+v", got.User)
	}
	if got.StartParam != "ref_7" {
		t.Fatalf("start_param = %q", got.StartParam)
	}
}

func TestValidateRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	user := `{"id":42}`

	tampered := buildInitData(map[string]string{"auth_date": strconv.FormatInt(now.Unix(), 10), "user": user})
	vals, _ := url.ParseQuery(tampered)
	vals.Set("user", `{"id":1}`)

	cases := []struct {
		name     string
		initData string
		want     error
	}{
		{"no hash", "auth_date=1&user=%7B%7D", ErrMissingHash},
		{"tampered", vals.Encode(), ErrBadHash},
		{"expired", buildInitData(map[string]string{
			"auth_date": strconv.FormatInt(now.Add(-2*time.Hour).Unix(), 10),
			"user":      user,
		}), ErrExpired},
		{"future", buildInitData(map[string]string{
			"auth_date": strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10),
			"user":      user,
		}), ErrExpired},
		{"no user", buildInitData(map[string]string{
			"auth_date": strconv.FormatInt(now.Unix(), 10),
		}), ErrNoUser},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.initData, botToken, now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateWrongToken(t *testing.T) {
	now := time.Now()
	initData := buildInitData(map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
		"user":      `{"id":5}`,
	})
	if _, err := Validate(initData, "other-token", now); !errors.Is(err, ErrBadHash) {
		t.Fatalf("err = %v, want ErrBadHash", err)
	}
}
