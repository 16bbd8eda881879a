package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicyRateLimited
	PolicyBlocked
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyRateLimited:
		return "rate_limited"
	case PolicyBlocked:
		return "blocked"
	default:
		return "none"
	}
}

// PolicyError is a connection refused by exchange policy rather than a
// transport failure.
type PolicyError struct {
	Exchange   string
	StatusCode int
	Kind       PolicyKind
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: handshake refused with HTTP %d (%s)", e.Exchange, e.StatusCode, e.Kind)
}

func policyKindForStatus(status int) PolicyKind {
	switch status {
	case http.StatusTooManyRequests, http.StatusTeapot:
		return PolicyRateLimited
	case http.StatusUnavailableForLegalReasons:
		return PolicyBlocked
	default:
		return PolicyNone
	}
}

// classifyDialError turns a failed handshake response into a PolicyError
// where the status code calls for it.
func classifyDialError(exchange string, resp *http.Response, err error) error {
	if resp != nil {
		if kind := policyKindForStatus(resp.StatusCode); kind != PolicyNone {
			return &PolicyError{Exchange: exchange, StatusCode: resp.StatusCode, Kind: kind}
		}
		return fmt.Errorf("%s: dial: HTTP %d: %w", exchange, resp.StatusCode, err)
	}
	return fmt.Errorf("%s: dial: %w", exchange, err)
}

// Backoff is the reconnect delay policy. The zero value is not usable; start
// from DefaultBackoff.
type Backoff struct {
	Min             time.Duration
	Max             time.Duration
	RateLimitFloor  time.Duration
	BlockedCooldown time.Duration

	current time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Min:             time.Second,
		Max:             30 * time.Second,
		RateLimitFloor:  60 * time.Second,
		BlockedCooldown: time.Hour,
	}
}

func (b *Backoff) Reset() {
	b.current = b.Min
}

// Next returns the delay before the next connection attempt after err.
func (b *Backoff) Next(err error) time.Duration {
	if b.current <= 0 {
		b.current = b.Min
	}

	var perr *PolicyError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case PolicyBlocked:
			return b.BlockedCooldown
		case PolicyRateLimited:
			wait := max(2*b.current, b.RateLimitFloor)
			b.current = b.Max
			return wait
		}
	}

	wait := b.current
	b.current = min(2*b.current, b.Max)
	return wait
}
