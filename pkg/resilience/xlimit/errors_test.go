package xlimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &StoreError{Op: "get", Key: "k", Err: cause}

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `store get "k"`)
	assert.True(t, IsStoreError(err))
	assert.False(t, IsMalformedCounter(err))
}

func TestCounterError(t *testing.T) {
	_, perr := strconv.ParseInt("x", 10, 64)
	err := &CounterError{Key: "k", Raw: "x", Err: perr}

	assert.ErrorIs(t, err, ErrMalformedCounter)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.True(t, IsMalformedCounter(err))
	assert.False(t, IsStoreError(err))
}

func TestStoreErrorWrapping(t *testing.T) {
	assert.NoError(t, storeError("get", "k", nil))

	wrapped := storeError("get", "k", io.EOF)
	var se *StoreError
	assert.ErrorAs(t, wrapped, &se)

	assert.Same(t, wrapped, storeError("set", "k2", wrapped), "already wrapped errors pass through")

	ce := &CounterError{Key: "k", Raw: "x"}
	assert.Same(t, error(ce), storeError("get", "k", ce))
	assert.Equal(t, ErrCASConflict, storeError("cas", "k", ErrCASConflict))
}

func TestIsStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrStoreUnavailable, true},
		{"open breaker", gobreaker.ErrOpenState, true},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"eof", io.EOF, true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("x")}, true},
		{"dns error", &net.DNSError{Err: "no such host"}, true},
		{"plain", errors.New("plain"), false},
		{"malformed", ErrMalformedCounter, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStoreError(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "none", classifyError(nil))
	assert.Equal(t, "circuit_open", classifyError(gobreaker.ErrTooManyRequests))
	assert.Equal(t, "malformed_counter", classifyError(&CounterError{Key: "k"}))
	assert.Equal(t, "cas_conflict", classifyError(ErrCASConflict))
	assert.Equal(t, "timeout", classifyError(timeoutErr{}))
	assert.Equal(t, "timeout", classifyError(syscall.ETIMEDOUT))
	assert.Equal(t, "unavailable", classifyError(io.EOF))
	assert.Equal(t, "other", classifyError(context.Canceled))
}
