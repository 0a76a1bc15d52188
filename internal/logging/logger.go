package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ComponentLogger provides structured logging for pipeline stages
type ComponentLogger struct {
	logger zerolog.Logger
}

// NewComponentLogger creates a component-specific logger with consistent context
func NewComponentLogger(componentName, version string) *ComponentLogger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(levelFromEnv(os.Getenv("LOG_LEVEL")))

	var out io.Writer = os.Stderr
	// Console output for development
	if os.Getenv("ENVIRONMENT") != "production" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("component", componentName).
		Str("version", version).
		Logger()

	return &ComponentLogger{logger: logger}
}

// NewNopLogger returns a logger that discards everything, used by tests
func NewNopLogger() *ComponentLogger {
	return &ComponentLogger{logger: zerolog.Nop()}
}

// With returns a child logger tagged with the given stage name
func (cl *ComponentLogger) With(stage string) *ComponentLogger {
	return &ComponentLogger{logger: cl.logger.With().Str("stage", stage).Logger()}
}

func (cl *ComponentLogger) Info() *zerolog.Event {
	return cl.logger.Info()
}

func (cl *ComponentLogger) Error() *zerolog.Event {
	return cl.logger.Error()
}

func (cl *ComponentLogger) Warn() *zerolog.Event {
	return cl.logger.Warn()
}

func (cl *ComponentLogger) Debug() *zerolog.Event {
	return cl.logger.Debug()
}

// LogStageStart logs the beginning of a stage run with its run id and target snapshot
func (cl *ComponentLogger) LogStageStart(stage, runID, snapshotDate string) {
	cl.Info().
		Str("operation", "stage_start").
		Str("stage", stage).
		Str("run_id", runID).
		Str("snapshot_date", snapshotDate).
		Msg("Stage started")
}

// LogStageComplete logs the successful end of a stage run
func (cl *ComponentLogger) LogStageComplete(stage, runID string, duration time.Duration) {
	cl.Info().
		Str("operation", "stage_complete").
		Str("stage", stage).
		Str("run_id", runID).
		Dur("duration", duration).
		Msg("Stage completed")
}

// LogPruned logs the snapshots removed by retention
func (cl *ComponentLogger) LogPruned(storeDir string, removed []string, keep int) {
	if len(removed) == 0 {
		return
	}
	cl.Info().
		Str("operation", "prune").
		Str("store", storeDir).
		Int("keep", keep).
		Strs("removed", removed).
		Msgf("Pruned %d old snapshot(s)", len(removed))
}

func levelFromEnv(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
