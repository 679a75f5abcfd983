package hos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailyLogsSplitsAtMidnight(t *testing.T) {
	events := []Event{
		{Status: OnDuty, Start: at(0, 21, 30), End: at(0, 22, 0), Location: "Reno, NV"},
		{Status: Driving, Start: at(0, 22, 0), End: at(1, 2, 0), Miles: 240, TruckMoved: true},
		{Status: SleeperBerth, Start: at(1, 2, 0), End: at(1, 12, 0)},
	}
	logs := BuildDailyLogs(events, time.UTC, LogHeader{VehicleNumber: "P1234", ShipperName: "Acme"})
	require.Len(t, logs, 2)

	d1 := logs[0]
	assert.Equal(t, at(0, 0, 0), d1.Date)
	assert.Equal(t, 21*time.Hour+30*time.Minute, d1.OffDuty)
	assert.Equal(t, 30*time.Minute, d1.OnDuty)
	assert.Equal(t, 2*time.Hour, d1.Driving)
	assert.InDelta(t, 120, d1.Miles, 1e-9)
	assert.Equal(t, 24*time.Hour, d1.Total())
	require.Len(t, d1.Events, 3)
	assert.Equal(t, "Reno, NV", d1.Events[0].Location)
	assert.Equal(t, "Off duty", d1.Events[0].Remarks)
	assert.Equal(t, at(1, 0, 0), d1.Events[2].End)

	d2 := logs[1]
	assert.Equal(t, 2*time.Hour, d2.Driving)
	assert.Equal(t, 10*time.Hour, d2.SleeperBerth)
	assert.Equal(t, 12*time.Hour, d2.OffDuty)
	assert.InDelta(t, 120, d2.Miles, 1e-9)
	assert.Equal(t, 24*time.Hour, d2.Total())
	assert.Equal(t, 2*time.Hour, d2.OnDutyTotal())

	assert.Equal(t, "P1234", d2.Header.VehicleNumber)
	assert.Equal(t, DefaultTrailerNumber, d2.Header.TrailerNumber)
	assert.Equal(t, "Acme", d2.Header.ShipperName)
}

func TestBuildDailyLogsEventEndingAtMidnight(t *testing.T) {
	events := []Event{
		{Status: Driving, Start: at(0, 20, 0), End: at(1, 0, 0), Miles: 200},
		{Status: OnDuty, Start: at(1, 0, 0), End: at(1, 1, 0)},
	}
	logs := BuildDailyLogs(events, time.UTC, LogHeader{})
	require.Len(t, logs, 2)
	assert.Equal(t, 20*time.Hour, logs[0].OffDuty)
	assert.InDelta(t, 200, logs[0].Miles, 1e-9)
	assert.Equal(t, time.Hour, logs[1].OnDuty)
	assert.Equal(t, 23*time.Hour, logs[1].OffDuty)
}

func TestBuildDailyLogsSingleEventEndsAtMidnight(t *testing.T) {
	logs := BuildDailyLogs([]Event{{Status: OnDuty, Start: at(0, 0, 0), End: at(1, 0, 0)}}, time.UTC, LogHeader{})
	require.Len(t, logs, 1)
	assert.Equal(t, 24*time.Hour, logs[0].OnDuty)
	assert.Zero(t, logs[0].OffDuty)
}

func TestBuildDailyLogsUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC on the 4th is still the 3rd in New York
	events := []Event{{Status: Driving, Start: at(1, 3, 0), End: at(1, 4, 0), Miles: 50}}
	logs := BuildDailyLogs(events, ny, LogHeader{})
	require.Len(t, logs, 1)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, ny), logs[0].Date)
	assert.Equal(t, ny, logs[0].Events[0].Start.Location())
}

func TestBuildDailyLogsShortDSTDay(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	start := time.Date(2025, 3, 9, 1, 0, 0, 0, chicago)
	events := []Event{{Status: SleeperBerth, Start: start, End: start.Add(4 * time.Hour)}}
	logs := BuildDailyLogs(events, chicago, LogHeader{})
	require.Len(t, logs, 1)
	assert.Equal(t, 23*time.Hour, logs[0].Total())
}

func TestBuildDailyLogsEmpty(t *testing.T) {
	assert.Nil(t, BuildDailyLogs(nil, time.UTC, LogHeader{}))
}
