package settings

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// EvaluatorLogEvent describes a formula evaluation for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Key      string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}

// HCLogEvaluatorLogger writes evaluations to logger: successes at trace
// level, failures at warn level.
func HCLogEvaluatorLogger(logger hclog.Logger) EvaluatorLogger {
	if logger == nil {
		return noopEvaluatorLogger{}
	}
	return EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		args := []any{"engine", event.Engine, "expr", event.Expr, "key", event.Key, "duration", event.Duration}
		if event.Err != nil {
			logger.Warn("formula evaluation failed", append(args, "error", event.Err)...)
			return
		}
		logger.Trace("formula evaluated", args...)
	})
}
