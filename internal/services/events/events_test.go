package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishToAll_PanicIsolated(t *testing.T) {
	var got []Kind
	b := NewBus(ObserverFunc(func(e Event) { panic("boom") }))
	b.Subscribe(ObserverFunc(func(e Event) { got = append(got, e.Kind) }))
	b.Subscribe(nil)

	require.NotPanics(t, func() {
		b.Publish(Event{Kind: KindAccepted})
		b.Publish(Event{Kind: KindRefocus})
	})
	require.Equal(t, []Kind{KindAccepted, KindRefocus}, got)
}

func TestBus_NilSafe(t *testing.T) {
	var b *Bus
	require.NotPanics(t, func() {
		b.Publish(Event{Kind: KindAccepted})
		b.Subscribe(ObserverFunc(func(Event) {}))
	})
}
