package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedule_DelayReturnsOrderedEntries(t *testing.T) {
	s := Schedule{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, s.Delay(0))
	assert.Equal(t, 20*time.Millisecond, s.Delay(1))
	assert.Equal(t, 40*time.Millisecond, s.Delay(2))
}

func TestSchedule_DelayClampsBeyondLastEntry(t *testing.T) {
	s := Schedule{10 * time.Millisecond, 20 * time.Millisecond}
	assert.Equal(t, 20*time.Millisecond, s.Delay(5))
	assert.Equal(t, 20*time.Millisecond, s.Delay(100))
}

func TestSchedule_DelayOnEmptyScheduleReturnsZero(t *testing.T) {
	var s Schedule
	assert.Equal(t, time.Duration(0), s.Delay(0))
	assert.Equal(t, time.Duration(0), s.Delay(3))
}

func TestDefault_MatchesDocumentedMillisecondProgression(t *testing.T) {
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}, []time.Duration(Default))
}
