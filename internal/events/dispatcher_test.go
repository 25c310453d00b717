package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcher_DeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(nil)

	var got []EventType
	d.Subscribe(EventLoginFailed, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return errors.New("handler failure")
	})
	d.Subscribe(EventLoginFailed, func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventLoginFailed}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventLoginSucceeded}))

	assert.Equal(t, []EventType{EventLoginFailed, EventLoginFailed}, got)
}
