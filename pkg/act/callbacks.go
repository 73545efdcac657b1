package act

import (
	"context"

	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
)

// Callbacks observe a run. Any field may be nil. Step callbacks are invoked from the
// goroutine running the step, so implementations must be safe for concurrent use.
type Callbacks struct {
	OnActCreate        func(ctx context.Context, act models.Act)
	OnActStart         func(ctx context.Context, act models.Act)
	OnSequenceStart    func(ctx context.Context, act models.Act, seq models.Sequence)
	OnSequenceComplete func(ctx context.Context, act models.Act, seq models.Sequence)
	OnSequenceFail     func(ctx context.Context, act models.Act, seq models.Sequence)
	OnSequenceSkip     func(ctx context.Context, act models.Act, seq models.Sequence)
	OnStepStart        func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step)
	OnStepComplete     func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, result executor.StepResult)
	OnStepFail         func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, result executor.StepResult)
	OnActComplete      func(ctx context.Context, act models.Act)
}

// Combine returns callbacks that invoke each of cbs in order.
func Combine(cbs ...Callbacks) Callbacks {
	return Callbacks{
		OnActCreate: func(ctx context.Context, act models.Act) {
			for _, c := range cbs {
				c.actCreate(ctx, act)
			}
		},
		OnActStart: func(ctx context.Context, act models.Act) {
			for _, c := range cbs {
				c.actStart(ctx, act)
			}
		},
		OnSequenceStart: func(ctx context.Context, act models.Act, seq models.Sequence) {
			for _, c := range cbs {
				c.sequenceStart(ctx, act, seq)
			}
		},
		OnSequenceComplete: func(ctx context.Context, act models.Act, seq models.Sequence) {
			for _, c := range cbs {
				c.sequenceComplete(ctx, act, seq)
			}
		},
		OnSequenceFail: func(ctx context.Context, act models.Act, seq models.Sequence) {
			for _, c := range cbs {
				c.sequenceFail(ctx, act, seq)
			}
		},
		OnSequenceSkip: func(ctx context.Context, act models.Act, seq models.Sequence) {
			for _, c := range cbs {
				c.sequenceSkip(ctx, act, seq)
			}
		},
		OnStepStart: func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step) {
			for _, c := range cbs {
				c.stepStart(ctx, act, seq, step)
			}
		},
		OnStepComplete: func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
			for _, c := range cbs {
				c.stepComplete(ctx, act, seq, step, res)
			}
		},
		OnStepFail: func(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
			for _, c := range cbs {
				c.stepFail(ctx, act, seq, step, res)
			}
		},
		OnActComplete: func(ctx context.Context, act models.Act) {
			for _, c := range cbs {
				c.actComplete(ctx, act)
			}
		},
	}
}

func (c Callbacks) actCreate(ctx context.Context, act models.Act) {
	if c.OnActCreate != nil {
		c.OnActCreate(ctx, act)
	}
}

func (c Callbacks) actStart(ctx context.Context, act models.Act) {
	if c.OnActStart != nil {
		c.OnActStart(ctx, act)
	}
}

func (c Callbacks) sequenceStart(ctx context.Context, act models.Act, seq models.Sequence) {
	if c.OnSequenceStart != nil {
		c.OnSequenceStart(ctx, act, seq)
	}
}

func (c Callbacks) sequenceComplete(ctx context.Context, act models.Act, seq models.Sequence) {
	if c.OnSequenceComplete != nil {
		c.OnSequenceComplete(ctx, act, seq)
	}
}

func (c Callbacks) sequenceFail(ctx context.Context, act models.Act, seq models.Sequence) {
	if c.OnSequenceFail != nil {
		c.OnSequenceFail(ctx, act, seq)
	}
}

func (c Callbacks) sequenceSkip(ctx context.Context, act models.Act, seq models.Sequence) {
	if c.OnSequenceSkip != nil {
		c.OnSequenceSkip(ctx, act, seq)
	}
}

func (c Callbacks) stepStart(ctx context.Context, act models.Act, seq models.Sequence, step models.Step) {
	if c.OnStepStart != nil {
		c.OnStepStart(ctx, act, seq, step)
	}
}

func (c Callbacks) stepComplete(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
	if c.OnStepComplete != nil {
		c.OnStepComplete(ctx, act, seq, step, res)
	}
}

func (c Callbacks) stepFail(ctx context.Context, act models.Act, seq models.Sequence, step models.Step, res executor.StepResult) {
	if c.OnStepFail != nil {
		c.OnStepFail(ctx, act, seq, step, res)
	}
}

func (c Callbacks) actComplete(ctx context.Context, act models.Act) {
	if c.OnActComplete != nil {
		c.OnActComplete(ctx, act)
	}
}
