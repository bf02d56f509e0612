package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenersOrderAndUnsubscribe(t *testing.T) {
	var l listeners[int]
	var got []string

	unsubA := l.add(func(v int) { got = append(got, "a") })
	l.add(func(v int) { got = append(got, "b") })

	l.emit(1)
	assert.Equal(t, []string{"a", "b"}, got)

	unsubA()
	unsubA()
	got = nil
	l.emit(2)
	assert.Equal(t, []string{"b"}, got)
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	var l listeners[string]
	calls := 0
	var unsub func()
	unsub = l.add(func(string) {
		calls++
		unsub()
	})
	l.emit("x")
	l.emit("y")
	assert.Equal(t, 1, calls)
}
