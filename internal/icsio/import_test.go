package icsio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/model"
)

func wrapICS(vevents string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//test//EN\r\n" +
		vevents + "END:VCALENDAR\r\n"
}

func TestImportSingleEvent(t *testing.T) {
	payload := wrapICS(
		"BEGIN:VEVENT\r\n" +
			"UID:single@test\r\n" +
			"SUMMARY:Dentist\r\n" +
			"DTSTART:20240312T143000Z\r\n" +
			"DTEND:20240312T153000Z\r\n" +
			"END:VEVENT\r\n")

	res, err := Import(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 0, res.Skipped)

	ev := res.Events[0]
	assert.Equal(t, "Dentist", ev.Title)
	assert.Equal(t, model.RecurNone, ev.Recurrence.Kind)
	assert.Equal(t, time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC), ev.Start.UTC())
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Hour, ev.End.Sub(ev.Start))
}

func TestImportRecurrenceMapping(t *testing.T) {
	t.Run("daily", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:d@test\r\nSUMMARY:Daily\r\n" +
				"DTSTART:20240101T090000Z\r\nRRULE:FREQ=DAILY\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		assert.Equal(t, model.RecurDaily, res.Events[0].Recurrence.Kind)
	})

	t.Run("daily with interval becomes custom", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:c@test\r\nSUMMARY:Every3\r\n" +
				"DTSTART:20240101T090000Z\r\nRRULE:FREQ=DAILY;INTERVAL=3\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		rec := res.Events[0].Recurrence
		assert.Equal(t, model.RecurCustom, rec.Kind)
		assert.Equal(t, 3, rec.IntervalDays)
	})

	t.Run("weekly with BYDAY", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:w@test\r\nSUMMARY:Gym\r\n" +
				"DTSTART:20240101T180000Z\r\nRRULE:FREQ=WEEKLY;BYDAY=MO,TH\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		rec := res.Events[0].Recurrence
		assert.Equal(t, model.RecurWeekly, rec.Kind)
		assert.ElementsMatch(t, []time.Weekday{time.Monday, time.Thursday}, rec.Weekdays)
	})

	t.Run("weekly without BYDAY uses the start weekday", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:w2@test\r\nSUMMARY:Weekly\r\n" +
				"DTSTART:20240101T180000Z\r\nRRULE:FREQ=WEEKLY\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		// 2024-01-01 is a Monday.
		assert.Equal(t, []time.Weekday{time.Monday}, res.Events[0].Recurrence.Weekdays)
	})

	t.Run("monthly with BYMONTHDAY", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:m@test\r\nSUMMARY:Rent\r\n" +
				"DTSTART:20240115T100000Z\r\nRRULE:FREQ=MONTHLY;BYMONTHDAY=15\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		rec := res.Events[0].Recurrence
		assert.Equal(t, model.RecurMonthly, rec.Kind)
		assert.Equal(t, 15, rec.MonthDay)
	})

	t.Run("until carries over", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:u@test\r\nSUMMARY:Course\r\n" +
				"DTSTART:20240101T090000Z\r\nRRULE:FREQ=DAILY;UNTIL=20240301T090000Z\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		require.NotNil(t, res.Events[0].Recurrence.Until)
		assert.Equal(t, 2024, res.Events[0].Recurrence.Until.Year())
	})

	t.Run("count is materialized as until", func(t *testing.T) {
		payload := wrapICS(
			"BEGIN:VEVENT\r\nUID:n@test\r\nSUMMARY:Sprint\r\n" +
				"DTSTART:20240101T090000Z\r\nRRULE:FREQ=DAILY;COUNT=5\r\nEND:VEVENT\r\n")
		res, err := Import(strings.NewReader(payload))
		require.NoError(t, err)
		require.Len(t, res.Events, 1)
		until := res.Events[0].Recurrence.Until
		require.NotNil(t, until)
		assert.Equal(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), until.UTC())
	})
}

func TestImportSkipsUnmappableRules(t *testing.T) {
	payload := wrapICS(
		"BEGIN:VEVENT\r\nUID:y@test\r\nSUMMARY:Yearly\r\n" +
			"DTSTART:20240101T090000Z\r\nRRULE:FREQ=YEARLY\r\nEND:VEVENT\r\n" +
			"BEGIN:VEVENT\r\nUID:ok@test\r\nSUMMARY:Fine\r\n" +
				"DTSTART:20240102T090000Z\r\nEND:VEVENT\r\n")

	res, err := Import(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Fine", res.Events[0].Title)
	assert.Equal(t, 1, res.Skipped)
}

func TestImportSkipsMissingSummary(t *testing.T) {
	payload := wrapICS(
		"BEGIN:VEVENT\r\nUID:nosummary@test\r\n" +
			"DTSTART:20240101T090000Z\r\nEND:VEVENT\r\n")

	res, err := Import(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, 1, res.Skipped)
}

func TestImportAllDayEvent(t *testing.T) {
	payload := wrapICS(
		"BEGIN:VEVENT\r\nUID:ad@test\r\nSUMMARY:Holiday\r\n" +
			"DTSTART;VALUE=DATE:20240315\r\nEND:VEVENT\r\n")

	res, err := Import(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	ev := res.Events[0]
	assert.Equal(t, ev.Start, model.Day(ev.Start))
	require.NotNil(t, ev.End)
	assert.Equal(t, 24*time.Hour, ev.End.Sub(ev.Start))
}
