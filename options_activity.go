package settings

import (
	"context"

	"github.com/goliatone/go-settings/pkg/activity"
)

// WithActivity routes setting write events to emitter.
func WithActivity(emitter *activity.Emitter) Option {
	return func(cfg *config) {
		cfg.activity = emitter
	}
}

// WithActivityHooks builds an enabled emitter over hooks on the default
// channel. Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	emitter := activity.NewEmitter(hooks, activity.Config{Enabled: true})
	return func(cfg *config) {
		cfg.activity = emitter
	}
}

func (cfg config) emit(logger loggerWarn, event activity.Event) {
	if !cfg.activity.Enabled() {
		return
	}
	if err := cfg.activity.Emit(context.Background(), event); err != nil {
		logger.Warn("activity hook failed", "verb", event.Verb, "object", event.ObjectID, "error", err)
	}
}

type loggerWarn interface {
	Warn(msg string, args ...interface{})
}
