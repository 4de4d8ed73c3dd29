// Package ratelimit caps card tap requests per terminal and client IP in fixed windows.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// Result reports the state of the window after one request was counted.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts one request against key.
type Limiter interface {
	Consume(ctx context.Context, key string) (Result, error)
}

// Key joins the terminal id and client IP into a bucket key.
func Key(terminalID, clientIP string) string {
	return terminalID + "|" + clientIP
}

// ResolveClientIP picks the caller address. The trusted proxy header wins, then the first
// X-Forwarded-For entry, then X-Real-IP, then the connection address.
func ResolveClientIP(header func(string) string, trustedHeader, remoteAddr string) string {
	if trustedHeader != "" {
		if ip := strings.TrimSpace(header(trustedHeader)); ip != "" {
			return ip
		}
	}
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(header("X-Real-IP")); ip != "" {
		return ip
	}
	return remoteAddr
}

func result(count, max int, resetIn time.Duration) Result {
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	if resetIn < 0 {
		resetIn = 0
	}
	return Result{Allowed: count <= max, Remaining: remaining, ResetIn: resetIn}
}
