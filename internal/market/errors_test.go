package market

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestIsWashTrade(t *testing.T) {
	rej := &APIRejection{
		Op:      "submit order",
		Status:  403,
		Message: "potential wash trade detected. use complex orders",
		Body:    `{"code":40310000,"message":"potential wash trade detected. use complex orders"}`,
	}
	if !IsWashTrade(rej) {
		t.Error("expected wash trade rejection to be detected")
	}
	if !IsWashTrade(fmt.Errorf("buy BOIL: %w", rej)) {
		t.Error("expected wrapped wash trade rejection to be detected")
	}

	// Body-only match (message empty, e.g. non-JSON error payload).
	bodyOnly := &APIRejection{Op: "submit order", Status: 403, Body: "Potential WASH TRADE detected"}
	if !IsWashTrade(bodyOnly) {
		t.Error("expected case-insensitive body match")
	}

	other := &APIRejection{Op: "submit order", Status: 403, Message: "insufficient buying power"}
	if IsWashTrade(other) {
		t.Error("buying power rejection must not be treated as wash trade")
	}
	if IsWashTrade(nil) {
		t.Error("nil error must not be a wash trade")
	}
}

func TestIsInsufficientQty(t *testing.T) {
	cases := map[string]bool{
		`insufficient qty available for order (requested: 10, available: 0)`: true,
		`{"message":"insufficient quantity"}`:                                  true,
		`shares held_for_orders`:                                               true,
		`market is closed`:                                                     false,
	}
	for body, want := range cases {
		err := &APIRejection{Op: "sell", Status: 403, Body: body}
		if got := IsInsufficientQty(err); got != want {
			t.Errorf("IsInsufficientQty(%q) = %v, want %v", body, got, want)
		}
	}
}

func TestAPIRejection_Is(t *testing.T) {
	notFound := &APIRejection{Op: "get position", Status: 404, Message: "position does not exist"}
	if !errors.Is(notFound, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	if errors.Is(notFound, ErrAuth) {
		t.Error("404 should not match ErrAuth")
	}

	unauthorized := fmt.Errorf("get account: %w", &APIRejection{Op: "get account", Status: 401, Message: "unauthorized."})
	if !errors.Is(unauthorized, ErrAuth) {
		t.Error("401 should match ErrAuth through wrapping")
	}
}

func TestAPIRejection_ErrorFallsBackToBodySnippet(t *testing.T) {
	err := &APIRejection{Op: "submit order", Status: 500, Body: strings.Repeat("x", 300)}
	msg := err.Error()
	if !strings.Contains(msg, "HTTP 500") {
		t.Errorf("expected status in message, got %q", msg)
	}
	if len(msg) > 260 {
		t.Errorf("expected body to be truncated, got %d chars", len(msg))
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"  short  ", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"°F°F", 4, "°F..."}, // byte 4 is inside the second "°"
		{"日本語", 4, "日..."},
	}
	for _, tt := range tests {
		got := Snippet(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("Snippet(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Snippet(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
