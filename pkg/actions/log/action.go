package log

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/actflow/pkg/executor"
)

// ActionIDWrite is the only action this provider offers.
const ActionIDWrite = "write"

// ErrUnsupportedAction is returned for an action id this provider does not offer.
var ErrUnsupportedAction = errors.New("unsupported log action")

// LogAction writes a message and the connected inputs to the logger.
type LogAction struct {
	Message string
	Level   string
}

func NewLogAction(params map[string]string) *LogAction {
	level := strings.ToLower(params["level"])
	if level == "" {
		level = "info"
	}

	return &LogAction{Message: params["message"], Level: level}
}

// Execute logs the message. When no message is set, the inputs are joined in port order.
func (a *LogAction) Execute(ctx context.Context, inputs map[string]string, logger *slog.Logger) (executor.ActionResult, error) {
	logger = logger.With("action_type", "log")

	message := a.Message
	if message == "" {
		parts := make([]string, 0, len(inputs))
		for _, port := range slices.Sorted(maps.Keys(inputs)) {
			parts = append(parts, inputs[port])
		}

		message = strings.Join(parts, "\n")
	}

	logger.Log(ctx, a.slogLevel(), message, "inputs", len(inputs))

	return executor.ActionResult{
		Content: message,
		Fields:  map[string]any{"message": message, "level": a.Level},
	}, nil
}

func (a *LogAction) slogLevel() slog.Level {
	switch a.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
