// Package natsutil classifies NATS and JetStream errors for the
// metadata gateway. Kept internal so types/ stays free of NATS imports.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/nsbundle/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
// Connectivity errors are the transient class the bundle cache retries.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// ClassifyError wraps a metadata-store error with the library's
// transient/permanent taxonomy so callers can decide on retry with
// errors.Is alone.
//
// Errors already carrying a classification pass through unchanged.
//
// Parameters:
//   - err: Underlying NATS/JetStream error (nil returns nil)
//
// Returns:
//   - error: err wrapped in types.ErrTransientMetadata or
//     types.ErrPermanentMetadata
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrTransientMetadata) || errors.Is(err, types.ErrPermanentMetadata) {
		return err
	}
	if IsConnectivityError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", types.ErrTransientMetadata, err)
	}

	return fmt.Errorf("%w: %w", types.ErrPermanentMetadata, err)
}
