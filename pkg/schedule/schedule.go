// Package schedule starts runs on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// TriggerType marks runs started by a schedule.
const TriggerType = "schedule"

// ScheduledAtParameter is the run parameter holding the fire time (RFC 3339).
const ScheduledAtParameter = "scheduledAt"

var (
	// ErrInvalidSchedule indicates a schedule that cannot be registered.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateSchedule indicates a second schedule with an id already registered.
	ErrDuplicateSchedule = errors.New("duplicate schedule")
)

// Schedule runs a workflow from StartNodeID every time Cron fires.
type Schedule struct {
	ID          string            `yaml:"id"          validate:"required"`
	Name        string            `yaml:"name"`
	WorkspaceID string            `yaml:"workspace"   validate:"required"`
	StartNodeID string            `yaml:"start"       validate:"required"`
	Cron        string            `yaml:"cron"        validate:"required"`
	Parameters  map[string]string `yaml:"parameters"`
}

type file struct {
	Schedules []Schedule `yaml:"schedules"`
}

// Runner is the part of the run service a schedule drives.
type Runner interface {
	CreateRun(ctx context.Context, req act.CreateRunRequest) (models.Act, error)
	StartRun(ctx context.Context, actID string) error
}

// LoadFile reads a YAML document with a top-level "schedules" list.
func LoadFile(path string) ([]Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file %s: %w", path, err)
	}

	var doc file

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule file %s: %w", path, err)
	}

	return doc.Schedules, nil
}

// Scheduler owns a cron instance whose entries create and start runs.
type Scheduler struct {
	runner    Runner
	cron      *cron.Cron
	parser    cron.Parser
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

type Option func(*Scheduler)

// WithLocation evaluates cron expressions in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithParser(s.parser))
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(runner Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	s := &Scheduler{
		runner:    runner,
		parser:    parser,
		cron:      cron.New(cron.WithLocation(time.UTC), cron.WithParser(parser)),
		validator: validator.New(),
		logger:    logger.With("module", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
		entries:   make(map[string]cron.EntryID),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add registers a schedule. It fires only while the scheduler is started.
func (s *Scheduler) Add(sched Schedule) error {
	err := s.validator.Struct(sched)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	spec, err := s.parser.Parse(sched.Cron)
	if err != nil {
		return fmt.Errorf("%w: schedule %s: %w", ErrInvalidSchedule, sched.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sched.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, sched.ID)
	}

	s.entries[sched.ID] = s.cron.Schedule(spec, cron.FuncJob(func() {
		_, err := s.Fire(context.Background(), sched)
		if err != nil {
			s.logger.Error("Scheduled run failed", "schedule_id", sched.ID, "error", err)
		}
	}))

	s.logger.Info("Schedule registered",
		"schedule_id", sched.ID,
		"cron", sched.Cron,
		"next", spec.Next(s.now()))

	return nil
}

// Remove unregisters a schedule; unknown ids are ignored.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// IDs lists the registered schedules.
func (s *Scheduler) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.entries))
}

// Fire creates and starts one run of sched.
func (s *Scheduler) Fire(ctx context.Context, sched Schedule) (models.Act, error) {
	items := []models.Parameter{{Name: ScheduledAtParameter, Value: s.now().Format(time.RFC3339)}}

	for _, name := range slices.Sorted(maps.Keys(sched.Parameters)) {
		items = append(items, models.Parameter{Name: name, Value: sched.Parameters[name]})
	}

	a, err := s.runner.CreateRun(ctx, act.CreateRunRequest{
		WorkspaceID: sched.WorkspaceID,
		StartNodeID: sched.StartNodeID,
		Name:        sched.Name,
		Inputs:      models.Inputs{models.ParametersInput{Items: items}},
		Trigger:     models.Trigger{Type: TriggerType, ID: sched.ID},
	})
	if err != nil {
		return models.Act{}, err
	}

	err = s.runner.StartRun(ctx, a.ID)
	if err != nil {
		return a, err
	}

	s.logger.InfoContext(ctx, "Scheduled run started", "schedule_id", sched.ID, "act_id", a.ID)

	return a, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
