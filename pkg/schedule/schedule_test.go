package schedule_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/models"
	"github.com/dukex/actflow/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []act.CreateRunRequest
	started  []string
	err      error
}

func (r *fakeRunner) CreateRun(_ context.Context, req act.CreateRunRequest) (models.Act, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return models.Act{}, r.err
	}

	r.requests = append(r.requests, req)

	return models.Act{ID: "act-1", WorkspaceID: req.WorkspaceID}, nil
}

func (r *fakeRunner) StartRun(_ context.Context, actID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.started = append(r.started, actID)

	return nil
}

func newScheduler(runner schedule.Runner) *schedule.Scheduler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	return schedule.New(runner, logger, schedule.WithClock(func() time.Time { return fixed }))
}

func daily() schedule.Schedule {
	return schedule.Schedule{
		ID:          "daily-digest",
		Name:        "Daily digest",
		WorkspaceID: "ws-1",
		StartNodeID: "trigger",
		Cron:        "0 9 * * *",
		Parameters:  map[string]string{"topic": "go", "audience": "team"},
	}
}

func TestScheduler_Fire(t *testing.T) {
	runner := &fakeRunner{}
	s := newScheduler(runner)

	a, err := s.Fire(t.Context(), daily())
	require.NoError(t, err)
	assert.Equal(t, "act-1", a.ID)
	assert.Equal(t, []string{"act-1"}, runner.started)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, models.Trigger{Type: schedule.TriggerType, ID: "daily-digest"}, req.Trigger)
	assert.Equal(t, "trigger", req.StartNodeID)

	params, ok := req.Inputs[0].(models.ParametersInput)
	require.True(t, ok)

	at, ok := params.Lookup(schedule.ScheduledAtParameter)
	require.True(t, ok)
	assert.Equal(t, "2025-03-01T09:00:00Z", at)

	topic, ok := params.Lookup("topic")
	require.True(t, ok)
	assert.Equal(t, "go", topic)
}

func TestScheduler_FireCreateError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("no workspace")}
	s := newScheduler(runner)

	_, err := s.Fire(t.Context(), daily())
	require.Error(t, err)
	assert.Empty(t, runner.started)
}

func TestScheduler_Add(t *testing.T) {
	s := newScheduler(&fakeRunner{})

	require.NoError(t, s.Add(daily()))
	require.ErrorIs(t, s.Add(daily()), schedule.ErrDuplicateSchedule)

	hourly := daily()
	hourly.ID = "hourly"
	hourly.Cron = "@hourly"
	require.NoError(t, s.Add(hourly))

	assert.Equal(t, []string{"daily-digest", "hourly"}, s.IDs())

	s.Remove("hourly")
	s.Remove("unknown")
	assert.Equal(t, []string{"daily-digest"}, s.IDs())
}

func TestScheduler_AddRejectsInvalid(t *testing.T) {
	s := newScheduler(&fakeRunner{})

	badCron := daily()
	badCron.Cron = "every day"
	require.ErrorIs(t, s.Add(badCron), schedule.ErrInvalidSchedule)

	missing := daily()
	missing.WorkspaceID = ""
	require.ErrorIs(t, s.Add(missing), schedule.ErrInvalidSchedule)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newScheduler(&fakeRunner{})
	require.NoError(t, s.Add(daily()))

	s.Start()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
schedules:
  - id: daily-digest
    workspace: ws-1
    start: trigger
    cron: "0 9 * * 1-5"
    parameters:
      topic: go
`), 0o600))

	schedules, err := schedule.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "ws-1", schedules[0].WorkspaceID)
	assert.Equal(t, "0 9 * * 1-5", schedules[0].Cron)
	assert.Equal(t, "go", schedules[0].Parameters["topic"])
}
