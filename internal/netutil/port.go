// Package netutil binds the control server to the first usable address.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// ErrNoAddress is returned when neither the preferred address nor any
// candidate could be bound.
var ErrNoAddress = errors.New("no available bind address")

// Listen binds preferred, falling back to candidates in order when
// autoFallback is set. The returned listener is already open, so there is no
// window between choosing an address and using it.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	var errs []error
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("bind %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying fallbacks", "addr", preferred, "error", err)
		errs = append(errs, err)
	}

	for _, addr := range candidates {
		if addr == "" || addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrNoAddress}, errs...)...)
}
