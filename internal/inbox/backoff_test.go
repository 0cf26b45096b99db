package inbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryControllerThresholds(t *testing.T) {
	r := NewRetryController(0, 0)
	boom := errors.New("boom")

	want := []Verdict{
		VerdictSilent, VerdictSilent, VerdictSilent,
		VerdictTransient, VerdictTransient, VerdictTransient, VerdictTransient,
		VerdictTransient, VerdictTransient, VerdictTransient,
		VerdictStop,
	}
	for n, verdict := range want {
		require.Equal(t, verdict, r.Record(boom), "failure %d", n+1)
	}
	require.True(t, r.Stopped())
	require.Equal(t, 11, r.Failures())

	// No recovery once stopped.
	require.Equal(t, VerdictStop, r.Record(nil))
	require.Equal(t, VerdictStop, r.Record(boom))
}

func TestRetryControllerSuccessResets(t *testing.T) {
	r := NewRetryController(3, 10)
	boom := errors.New("boom")
	for n := 0; n < 9; n++ {
		r.Failure()
	}
	require.Equal(t, VerdictOK, r.Success())
	require.Equal(t, 0, r.Failures())

	for n := 0; n < 3; n++ {
		require.Equal(t, VerdictSilent, r.Record(boom))
	}
	require.Equal(t, VerdictTransient, r.Record(boom))
}

func TestRetryControllerCustomThresholds(t *testing.T) {
	r := NewRetryController(1, 2)
	require.Equal(t, VerdictSilent, r.Failure())
	require.Equal(t, VerdictTransient, r.Failure())
	require.Equal(t, VerdictStop, r.Failure())

	clamped := NewRetryController(5, 2)
	for n := 0; n < 5; n++ {
		require.Equal(t, VerdictSilent, clamped.Failure())
	}
	require.Equal(t, VerdictStop, clamped.Failure())
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "transient", VerdictTransient.String())
	require.Equal(t, "unknown", Verdict(42).String())
}
