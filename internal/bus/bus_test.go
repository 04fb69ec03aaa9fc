package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()

	var a, c []Signal
	b.Subscribe(func(s Signal) { a = append(a, s) })
	b.Subscribe(func(s Signal) { c = append(c, s) })

	b.Publish(Signal{Source: SourceStore, Kind: "create"})

	assert.Len(t, a, 1)
	assert.Len(t, c, 1)
	assert.Equal(t, SourceStore, a[0].Source)
	assert.False(t, a[0].At.IsZero())
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	count := 0
	unsub := b.Subscribe(func(Signal) { count++ })

	b.Publish(Signal{Source: SourceViewport})
	unsub()
	b.Publish(Signal{Source: SourceViewport})

	assert.Equal(t, 1, count)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := New()

	reached := false
	b.Subscribe(func(Signal) { panic("boom") })
	b.Subscribe(func(Signal) { reached = true })

	assert.NotPanics(t, func() {
		b.Publish(Signal{Source: SourceWeather, Kind: "refresh"})
	})
	assert.True(t, reached)
}
