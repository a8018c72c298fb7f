package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronMatchesExpectedMinutes(t *testing.T) {
	spec, err := ParseCron("*/15 9-17 * * 1-5")
	require.NoError(t, err)

	monday9am := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	assert.True(t, spec.Matches(monday9am))

	monday909 := time.Date(2026, 8, 3, 9, 9, 0, 0, time.UTC)
	assert.False(t, spec.Matches(monday909))

	saturday := time.Date(2026, 8, 8, 9, 0, 0, 0, time.UTC)
	assert.False(t, spec.Matches(saturday))
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("* * *")
	assert.Error(t, err)
}

func TestCronNextFindsFutureMatch(t *testing.T) {
	spec, err := ParseCron("0 9 * * *")
	require.NoError(t, err)

	after := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	next, err := spec.Next(after)
	require.NoError(t, err)
	assert.Equal(t, 9, next.Hour())
	assert.True(t, next.After(after))
}

func writeScheduleFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTickInvokesDueActionAndReschedules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	writeScheduleFile(t, path, `
schedules:
  - name: nightly-digest
    schedule: "60"
    type: interval
    action: send_digest
    enabled: true
`)

	s, err := New(path)
	require.NoError(t, err)

	var invoked int
	s.RegisterAction("send_digest", func(ctx context.Context, e Entry) error {
		invoked++
		return nil
	})

	now := time.Now()
	require.NoError(t, s.Tick(context.Background(), now))
	assert.Equal(t, 1, invoked)

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Entries, 1)
	assert.Equal(t, 1, reloaded.Entries[0].RunCount)
	assert.NotNil(t, reloaded.Entries[0].NextRun)
}

func TestTickSkipsExceptedDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	today := time.Now().Format("2006-01-02")
	writeScheduleFile(t, path, `
schedules:
  - name: holiday-report
    schedule: "60"
    type: interval
    action: report
    enabled: true
    exceptions: ["`+today+`"]
`)

	s, err := New(path)
	require.NoError(t, err)

	var invoked int
	s.RegisterAction("report", func(ctx context.Context, e Entry) error {
		invoked++
		return nil
	})

	require.NoError(t, s.Tick(context.Background(), time.Now()))
	assert.Equal(t, 0, invoked)
}

func TestTickWarnsAndSkipsUnknownAction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	writeScheduleFile(t, path, `
schedules:
  - name: mystery
    schedule: "60"
    type: interval
    action: does_not_exist
    enabled: true
`)

	s, err := New(path)
	require.NoError(t, err)
	assert.NoError(t, s.Tick(context.Background(), time.Now()))
}
