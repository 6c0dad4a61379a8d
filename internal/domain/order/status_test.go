package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded}
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusCancelled},
		StatusShipped:    {StatusDelivered},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusShipped.Terminal())
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())

	assert.True(t, StatusPending.Cancellable())
	assert.True(t, StatusProcessing.Cancellable())
	assert.False(t, StatusShipped.Cancellable())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	require.Error(t, err)
}

func TestTransitionError(t *testing.T) {
	err := &TransitionError{From: StatusDelivered, To: StatusCancelled}
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "cannot change order status from delivered to cancelled", err.Error())
}
