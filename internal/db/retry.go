package db

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"time"
)

// isConnectionError reports whether err reflects a connection-layer
// failure (refused, broken pipe, reset) rather than a query-semantic
// error. Only these are retried on read paths; write paths never retry.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"broken pipe",
		"connection reset",
		"connection reset by peer",
		"bad connection",
		"driver: bad connection",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// withReadRetry wraps a read operation in up to 3 attempts with
// exponential backoff between them (100ms, then 200ms, each plus up to
// 50% jitter), retrying only
// connection-layer failures. Write paths must not use this helper —
// callers are responsible for idempotency on at-least-once retries.
func withReadRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	base := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isConnectionError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		backoff := base * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
