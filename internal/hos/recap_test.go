package hos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeRecap(t *testing.T) {
	now := at(10, 12, 0)
	h := func(n int) time.Time { return now.Add(time.Duration(n) * time.Hour) }
	r := DefaultRules()

	t.Run("no history", func(t *testing.T) {
		rc := ComputeRecap(nil, now, r)
		assert.Zero(t, rc.Used)
		assert.Equal(t, 70*time.Hour, rc.Available)
		assert.True(t, rc.Compliant)
		assert.True(t, rc.CanDriveFullShift)
		assert.Equal(t, now.Add(-8*24*time.Hour), rc.WindowStart)
	})

	t.Run("sums on duty and driving", func(t *testing.T) {
		events := []Event{
			{Status: Driving, Start: h(-48), End: h(-38)},
			{Status: SleeperBerth, Start: h(-38), End: h(-30)},
			{Status: OnDuty, Start: h(-30), End: h(-25)},
		}
		rc := ComputeRecap(events, now, r)
		assert.Equal(t, 15*time.Hour, rc.Used)
		assert.Equal(t, 55*time.Hour, rc.Available)
		assert.True(t, rc.LastRestart.IsZero())
	})

	t.Run("clips to the window and now", func(t *testing.T) {
		events := []Event{
			{Status: Driving, Start: h(-8*24 - 2), End: h(-8*24 + 3)},
			{Status: OnDuty, Start: h(-189), End: h(-188)},
			{Status: Driving, Start: h(-160), End: h(-150)},
			{Status: OnDuty, Start: h(-125), End: h(-120)},
			{Status: Driving, Start: h(-95), End: h(-90)},
			{Status: OnDuty, Start: h(-60), End: h(-58)},
			{Status: Driving, Start: h(-30), End: h(-28)},
			{Status: Driving, Start: h(-1), End: h(2)},
		}
		rc := ComputeRecap(events, now, r)
		assert.Equal(t, 29*time.Hour, rc.Used)
		assert.True(t, rc.LastRestart.IsZero())
	})

	t.Run("restart discards earlier work", func(t *testing.T) {
		events := []Event{
			{Status: Driving, Start: h(-100), End: h(-90)},
			{Status: OnDuty, Start: h(-20), End: h(-10)},
		}
		rc := ComputeRecap(events, now, r)
		assert.Equal(t, 10*time.Hour, rc.Used)
		assert.Equal(t, h(-20), rc.LastRestart)
		assert.Equal(t, h(-20), rc.WindowStart)
	})

	t.Run("long rest up to now", func(t *testing.T) {
		events := []Event{{Status: Driving, Start: h(-50), End: h(-40)}}
		rc := ComputeRecap(events, now, r)
		assert.Zero(t, rc.Used)
		assert.Equal(t, now, rc.LastRestart)
	})

	t.Run("over the limit", func(t *testing.T) {
		var events []Event
		for d := 7; d >= 1; d-- {
			events = append(events, Event{Status: Driving, Start: h(-24 * d), End: h(-24*d + 11)})
		}
		rc := ComputeRecap(events, now, r)
		assert.Equal(t, 77*time.Hour, rc.Used)
		assert.Zero(t, rc.Available)
		assert.False(t, rc.Compliant)
		assert.False(t, rc.CanDriveFullShift)
	})
}
