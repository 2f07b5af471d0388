package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired []int

	f.AfterFunc(30*time.Second, func() { fired = append(fired, 30) })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, 10) })
	f.AfterFunc(20*time.Second, func() { fired = append(fired, 20) })

	f.Advance(15 * time.Second)
	assert.Equal(t, []int{10}, fired)

	f.Advance(20 * time.Second)
	assert.Equal(t, []int{10, 20, 30}, fired)
}

func TestFakeCancelPreventsFiring(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	cancel := f.AfterFunc(5*time.Second, func() { fired = true })

	assert.True(t, cancel())
	f.Advance(10 * time.Second)
	assert.False(t, fired)
	assert.False(t, cancel(), "second cancel reports already stopped")
}

func TestFakeNestedTimersFireWithinWindow(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var fired []string
	f.AfterFunc(5*time.Second, func() {
		fired = append(fired, "outer")
		f.AfterFunc(5*time.Second, func() { fired = append(fired, "inner") })
	})

	f.Advance(12 * time.Second)
	assert.Equal(t, []string{"outer", "inner"}, fired)
	assert.Equal(t, time.Unix(12, 0), f.Now())
}
