package periodic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerFires(t *testing.T) {
	tm := New(5 * time.Millisecond)
	defer tm.Stop()

	select {
	case <-tm.C():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer never fired")
	}
}

func TestChannelStillAvailableAfterStop(t *testing.T) {
	tm := New(time.Hour)
	tm.Stop()
	assert.NotNil(t, tm.C())
}
