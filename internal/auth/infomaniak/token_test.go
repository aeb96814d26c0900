package infomaniak

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseApiTokenComputesExpiration(t *testing.T) {
	t.Parallel()

	before := time.Now()
	token, err := ParseApiToken([]byte(`{"access_token":"t","expires_in":3600,"scope":"s","token_type":"Bearer","user_id":42}`))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	after := time.Now()

	if token.AccessToken != "t" || token.Scope != "s" || token.TokenType != "Bearer" || token.UserID != 42 {
		t.Fatalf("unexpected token: %+v", token)
	}
	if token.RefreshToken != "" || token.HasRefreshToken() {
		t.Fatalf("expected no refresh token, got %q", token.RefreshToken)
	}
	if token.ExpiresIn == nil || *token.ExpiresIn != 3600 {
		t.Fatalf("ExpiresIn = %v", token.ExpiresIn)
	}
	if token.ExpirationDate == nil {
		t.Fatal("expected an expiration date")
	}
	lower := before.Add(3600 * time.Second).Add(-time.Second)
	upper := after.Add(3600 * time.Second).Add(time.Second)
	if token.ExpirationDate.Before(lower) || token.ExpirationDate.After(upper) {
		t.Fatalf("ExpirationDate = %v, want about now+3600s", token.ExpirationDate)
	}
}

func TestParseApiTokenWithoutExpiresIn(t *testing.T) {
	t.Parallel()

	token, err := ParseApiToken([]byte(`{"access_token":"t","refresh_token":"r","scope":"s","token_type":"Bearer","user_id":1}`))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	if token.ExpirationDate != nil || token.ExpiresIn != nil {
		t.Fatalf("token must not expire: %+v", token)
	}
	if token.Expired(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Fatal("non-expiring token reported expired")
	}
	if !token.HasRefreshToken() {
		t.Fatal("expected a refresh token")
	}
}

func TestParseApiTokenExplicitExpiration(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unix seconds": `{"access_token":"t","scope":"s","token_type":"Bearer","user_id":1,"expires_in":7200,"expiration_date":1893456000}`,
		"rfc3339":      `{"access_token":"t","scope":"s","token_type":"Bearer","user_id":1,"expires_in":7200,"expirationDate":"2030-01-01T00:00:00Z"}`,
	}
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, body := range cases {
		token, err := ParseApiToken([]byte(body))
		if err != nil {
			t.Fatalf("%s: ParseApiToken: %v", name, err)
		}
		if token.ExpirationDate == nil || !token.ExpirationDate.Equal(want) {
			t.Fatalf("%s: ExpirationDate = %v, want %v", name, token.ExpirationDate, want)
		}
	}
}

func TestParseApiTokenMissingFields(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"access_token": `{"scope":"s","token_type":"Bearer","user_id":1}`,
		"scope":        `{"access_token":"t","token_type":"Bearer","user_id":1}`,
		"token_type":   `{"access_token":"t","scope":"s","user_id":1}`,
		"user_id":      `{"access_token":"t","scope":"s","token_type":"Bearer"}`,
	}
	for field, body := range cases {
		if _, err := ParseApiToken([]byte(body)); err == nil || !strings.Contains(err.Error(), field) {
			t.Fatalf("missing %s: got %v", field, err)
		}
	}
	if _, err := ParseApiToken([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for invalid json")
	}
}

func TestApiTokenPersistedExpirationSurvivesReload(t *testing.T) {
	t.Parallel()

	token, err := ParseApiToken([]byte(`{"access_token":"t","refresh_token":"r","expires_in":60,"scope":"s","token_type":"Bearer","user_id":7}`))
	if err != nil {
		t.Fatalf("ParseApiToken: %v", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	reloaded, err := ParseApiToken(data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.ExpirationDate.Equal(token.ExpirationDate.Truncate(time.Nanosecond)) {
		t.Fatalf("expiration moved on reload: %v -> %v", token.ExpirationDate, reloaded.ExpirationDate)
	}
	if reloaded.RefreshToken != "r" || reloaded.UserID != 7 {
		t.Fatalf("unexpected reload: %+v", reloaded)
	}
}

func TestApiTokenExpiresWithin(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(5 * time.Minute)
	token := &ApiToken{AccessToken: "t", ExpirationDate: &expiry}

	if token.Expired(now) {
		t.Fatal("token expired too early")
	}
	if !token.ExpiresWithin(10*time.Minute, now) {
		t.Fatal("expected token to expire within 10 minutes")
	}
	if !token.Expired(expiry) {
		t.Fatal("token must be expired at its expiration date")
	}
}

func TestApiTokenOAuth2(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(time.Hour)
	seconds := 3600
	token := &ApiToken{AccessToken: "t", RefreshToken: "r", TokenType: "Bearer", Scope: "s", UserID: 42, ExpiresIn: &seconds, ExpirationDate: &expiry}

	converted := token.OAuth2()
	if converted.AccessToken != "t" || converted.RefreshToken != "r" || !converted.Expiry.Equal(expiry) {
		t.Fatalf("unexpected oauth2 token: %+v", converted)
	}
	if converted.Extra("user_id") != 42 || converted.Extra("scope") != "s" {
		t.Fatalf("extras missing: %v %v", converted.Extra("user_id"), converted.Extra("scope"))
	}
}

func TestApiTokenStringHidesSecrets(t *testing.T) {
	t.Parallel()

	token := &ApiToken{AccessToken: "accesssecretvalue", RefreshToken: "refreshsecretvalue", TokenType: "Bearer", UserID: 1}
	out := token.String()
	if strings.Contains(out, "accesssecretvalue") || strings.Contains(out, "refreshsecretvalue") {
		t.Fatalf("secrets leaked: %s", out)
	}
	if token.TruncatedAccessToken() != "acce-*****-alue" {
		t.Fatalf("TruncatedAccessToken = %q", token.TruncatedAccessToken())
	}
	if truncateToken("short") != "-*****-" {
		t.Fatalf("short tokens must be fully hidden")
	}
}
