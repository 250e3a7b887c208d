package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesCode(t *testing.T) {
	err := ErrConnection.WrapMsg("dial refused")
	require.True(t, ErrConnection.Is(err))
	require.False(t, ErrFetch.Is(err))
	require.False(t, ErrConnection.Is(nil))
}

func TestTimeoutIsAFetchFailure(t *testing.T) {
	err := ErrTimeout.WrapMsg("deadline exceeded")
	require.True(t, ErrTimeout.Is(err))
	require.True(t, ErrFetch.Is(err))
	// not the other way round
	require.False(t, ErrTimeout.Is(ErrFetch.WrapMsg("500")))
}

func TestIsSeesThroughWrapping(t *testing.T) {
	err := errors.Wrap(ErrAuthRejected.WrapMsg("bad token"), "connect")
	require.True(t, ErrAuthRejected.Is(err))
	require.False(t, ErrConnection.Is(err))
}

func TestWrapMsgFormatting(t *testing.T) {
	err := ErrFetch.WrapMsg("history", "room", "42", "status", 500)
	require.Equal(t, "10002 fetch error history room=42 status=500", err.Error())
}

func TestWithDetailDoesNotMutate(t *testing.T) {
	derived := ErrParse.WithDetail("truncated frame")
	require.Equal(t, "", ErrParse.Detail)
	require.Contains(t, derived.Error(), "truncated frame")

	again := derived.WithDetail("second")
	require.Contains(t, again.Error(), "truncated frame, second")
}

func TestWrap(t *testing.T) {
	require.NoError(t, ErrFetch.Wrap(nil))
	err := ErrFetch.Wrap(New("boom"))
	require.True(t, ErrFetch.Is(err))
	require.Contains(t, err.Error(), "boom")
}
