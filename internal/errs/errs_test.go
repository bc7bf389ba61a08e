package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, "Could not reach the exchange.")
	require.Equal(t, "dial tcp: connection refused", err.Error())
	require.Equal(t, "Could not reach the exchange.", err.ReasonText())
	require.ErrorIs(t, err, cause)

	require.Equal(t, "only reason", Error{Reason: "only reason"}.Error())
}

func TestReasonOf(t *testing.T) {
	wrapped := fmt.Errorf("turn: %w", Wrapf(errors.New("boom"), "Tool %s failed.", "get_prices"))
	require.Equal(t, "Tool get_prices failed.", ReasonOf(wrapped, "fallback"))
	require.Equal(t, "fallback", ReasonOf(errors.New("plain"), "fallback"))
	require.Equal(t, "fallback", ReasonOf(Error{Err: errors.New("x")}, "fallback"))
}
