package hos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ruleNames(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Rule
	}
	return out
}

func TestValidateDrivingLimitAndBreak(t *testing.T) {
	events := []Event{
		{Status: OnDuty, Start: at(0, 6, 0), End: at(0, 6, 30)},
		{Status: Driving, Start: at(0, 6, 30), End: at(0, 18, 30)},
	}
	vs := Validate(events, DefaultRules(), 0)
	assert.ElementsMatch(t, []string{RuleDrivingLimit, RuleBreak}, ruleNames(vs))
}

func TestValidateDutyWindow(t *testing.T) {
	events := []Event{
		{Status: OnDuty, Start: at(0, 6, 0), End: at(0, 14, 0)},
		{Status: Driving, Start: at(0, 14, 0), End: at(0, 21, 0)},
	}
	vs := Validate(events, DefaultRules(), 0)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleDutyWindow, vs[0].Rule)
	assert.Equal(t, at(0, 14, 0), vs[0].At)
	assert.Contains(t, vs[0].String(), "duty_window at 2025-03-03T14:00:00Z")
}

func TestValidateCycle(t *testing.T) {
	events := []Event{
		{Status: Driving, Start: at(0, 6, 0), End: at(0, 8, 0)},
		{Status: OnDuty, Start: at(0, 8, 0), End: at(0, 9, 0)},
	}
	vs := Validate(events, DefaultRules(), 69*time.Hour)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleCycle, vs[0].Rule)

	// a restart before the driving clears the prior cycle
	restarted := append([]Event{{Status: OffDuty, Start: at(-2, 20, 0), End: at(0, 6, 0)}}, events...)
	assert.Empty(t, Validate(restarted, DefaultRules(), 69*time.Hour))
}

func TestValidateRestResetsShift(t *testing.T) {
	events := []Event{
		{Status: Driving, Start: at(0, 6, 0), End: at(0, 14, 0)},
		{Status: SleeperBerth, Start: at(0, 14, 0), End: at(1, 0, 0)},
		{Status: Driving, Start: at(1, 0, 0), End: at(1, 8, 0)},
	}
	assert.Empty(t, Validate(events, DefaultRules(), 0))
}

func TestValidateGapCountsAsOffDuty(t *testing.T) {
	events := []Event{
		{Status: Driving, Start: at(0, 6, 0), End: at(0, 14, 0)},
		{Status: Driving, Start: at(0, 14, 30), End: at(0, 17, 0)},
	}
	assert.Empty(t, Validate(events, DefaultRules(), 0))
}

func TestValidateOnDutyCountsAsBreak(t *testing.T) {
	events := []Event{
		{Status: Driving, Start: at(0, 6, 0), End: at(0, 13, 0)},
		{Status: OnDuty, Start: at(0, 13, 0), End: at(0, 13, 15)},
		{Status: OffDuty, Start: at(0, 13, 15), End: at(0, 13, 30)},
		{Status: Driving, Start: at(0, 13, 30), End: at(0, 16, 30)},
	}
	assert.Empty(t, Validate(events, DefaultRules(), 0))

	short := []Event{
		{Status: Driving, Start: at(0, 6, 0), End: at(0, 13, 0)},
		{Status: OnDuty, Start: at(0, 13, 0), End: at(0, 13, 15)},
		{Status: Driving, Start: at(0, 13, 15), End: at(0, 16, 15)},
	}
	assert.Equal(t, []string{RuleBreak}, ruleNames(Validate(short, DefaultRules(), 0)))
}

func TestValidateSequence(t *testing.T) {
	events := []Event{
		{Status: OnDuty, Start: at(0, 6, 0), End: at(0, 7, 0)},
		{Status: Driving, Start: at(0, 6, 30), End: at(0, 8, 0)},
		{Status: "yard_move", Start: at(0, 8, 0), End: at(0, 9, 0)},
		{Status: OnDuty, Start: at(0, 10, 0), End: at(0, 9, 30)},
	}
	assert.Equal(t, []string{RuleSequence, RuleStatus, RuleSequence}, ruleNames(Validate(events, DefaultRules(), 0)))
}
