package market

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNetwork marks connection failures and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrAuth marks rejected credentials.
	ErrAuth = errors.New("credentials rejected")
	// ErrNotFound marks a missing resource (position, order, bar).
	ErrNotFound = errors.New("not found")
	// ErrParse marks a response body that could not be understood.
	ErrParse = errors.New("malformed response")
)

// APIRejection is a non-2xx answer from the brokerage API.
type APIRejection struct {
	Op      string
	Status  int
	Message string
	Body    string
}

func (e *APIRejection) Error() string {
	msg := e.Message
	if msg == "" {
		msg = Snippet(e.Body, 200)
	}
	return fmt.Sprintf("%s: broker rejected request (HTTP %d): %s", e.Op, e.Status, msg)
}

// Is lets callers match a rejection against the sentinel errors.
func (e *APIRejection) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// IsWashTrade reports whether err is the broker refusing an order because it
// would cross a resting order of the opposite side.
func IsWashTrade(err error) bool {
	return errorMentions(err, "wash trade")
}

// IsInsufficientQty reports whether err is the broker refusing a sell because
// the shares are already held by other orders.
func IsInsufficientQty(err error) bool {
	return errorMentions(err, "insufficient qty", "insufficient quantity", "held for orders", "held_for_orders")
}

func errorMentions(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	haystack := strings.ToLower(err.Error())
	var rej *APIRejection
	if errors.As(err, &rej) {
		haystack += " " + strings.ToLower(rej.Body)
	}
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// Snippet trims s and truncates it to at most n bytes for log lines,
// backing off to a rune boundary.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
