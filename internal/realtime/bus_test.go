package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus()
	var got []string
	cancel, err := bus.Subscribe("project_a", func(frame []byte) {
		got = append(got, string(frame))
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), "project_a", []byte("one")))
	require.NoError(t, bus.Publish(context.Background(), "project_a", []byte("two")))
	require.NoError(t, bus.Publish(context.Background(), "project_a", []byte("three")))

	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestMemoryBusIsolatesGroups(t *testing.T) {
	bus := NewMemoryBus()
	var a, b int
	cancelA, _ := bus.Subscribe("project_a", func([]byte) { a++ })
	defer cancelA()
	cancelB, _ := bus.Subscribe("project_b", func([]byte) { b++ })
	defer cancelB()

	require.NoError(t, bus.Publish(context.Background(), "project_a", []byte("x")))

	assert.Equal(t, 1, a)
	assert.Zero(t, b)
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	assert.NoError(t, bus.Publish(context.Background(), "project_empty", []byte("dropped")))
}

func TestMemoryBusCancelIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	var n int
	cancel, err := bus.Subscribe("project_a", func([]byte) { n++ })
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, bus.Publish(context.Background(), "project_a", []byte("x")))
	assert.Zero(t, n)
}
