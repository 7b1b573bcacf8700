package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_HappyPathTransitions(t *testing.T) {
	r := NewRun("job-1")
	assert.Equal(t, StatusClaimed, r.Status)

	for _, s := range []Status{
		StatusResolving, StatusChunking, StatusSeparating,
		StatusMerging, StatusEncoding, StatusPublished, StatusArchived,
	} {
		require.NoError(t, r.Advance(s))
		assert.Equal(t, s, r.Status)
	}
}

func TestRun_FailReachableFromEveryNonTerminalState(t *testing.T) {
	for _, s := range []Status{
		StatusClaimed, StatusResolving, StatusChunking,
		StatusSeparating, StatusMerging, StatusEncoding, StatusPublished,
	} {
		r := &Run{JobID: "job-1", Status: s}
		require.NoError(t, r.Fail("boom"))
		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, "boom", r.FailureReason)
	}
}

func TestRun_RejectsSkippedTransition(t *testing.T) {
	r := NewRun("job-1")
	err := r.Advance(StatusEncoding)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRun_RejectsTransitionFromTerminalState(t *testing.T) {
	r := &Run{JobID: "job-1", Status: StatusArchived}
	assert.ErrorIs(t, r.Advance(StatusResolving), ErrInvalidTransition)
	assert.ErrorIs(t, r.Fail("x"), ErrInvalidTransition)
}
