package hos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesFor(t *testing.T) {
	r := RulesFor(Cycle70x8)
	assert.Equal(t, 70*time.Hour, r.CycleLimit)
	assert.Equal(t, 8*24*time.Hour, r.CycleWindow())
	require.NoError(t, r.Validate())

	r = RulesFor(Cycle60x7)
	assert.Equal(t, Cycle60x7, r.Cycle)
	assert.Equal(t, 60*time.Hour, r.CycleLimit)
	assert.Equal(t, 7, r.CycleDays)
	require.NoError(t, r.Validate())
}

func TestParseCycle(t *testing.T) {
	for in, want := range map[string]CycleType{"": Cycle70x8, "70_8": Cycle70x8, "70/8": Cycle70x8, " 60-7 ": Cycle60x7} {
		got, err := ParseCycle(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCycle("80/8")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	cases := map[string]func(*Rules){
		"zero driving":     func(r *Rules) { r.DrivingLimit = 0 },
		"negative pickup":  func(r *Rules) { r.Pickup = -time.Minute },
		"no cycle days":    func(r *Rules) { r.CycleDays = 0 },
		"no fuel interval": func(r *Rules) { r.FuelIntervalMiles = 0 },
		"driving > window": func(r *Rules) { r.DrivingLimit = 15 * time.Hour },
		"task > window":    func(r *Rules) { r.Dropoff = 14 * time.Hour },
		"task > cycle":     func(r *Rules) { r.CycleLimit = 30 * time.Minute },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := DefaultRules()
			mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRules)
		})
	}
}

func TestAvailable(t *testing.T) {
	a := Available(52*time.Hour, DefaultRules())
	assert.Equal(t, 18*time.Hour, a.RemainingCycle)
	assert.Equal(t, 11*time.Hour, a.MaxDailyDriving)
	assert.Equal(t, 14*time.Hour, a.MaxDutyWindow)
	assert.True(t, a.CanDriveToday)

	a = Available(65*time.Hour, DefaultRules())
	assert.False(t, a.CanDriveToday)

	a = Available(75*time.Hour, DefaultRules())
	assert.Zero(t, a.RemainingCycle)
}

func TestNewPlannerRejectsBadRules(t *testing.T) {
	r := DefaultRules()
	r.BreakDuration = 0
	_, err := NewPlanner(r, nil)
	require.ErrorIs(t, err, ErrInvalidRules)

	p, err := NewPlanner(DefaultRules(), nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.Location())
	assert.Equal(t, DefaultRules(), p.Rules())
}
