package settings

import (
	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/hashicorp/go-hclog"
)

// Option configures containers, stacks, registries and providers.
type Option func(*config)

type config struct {
	logger          hclog.Logger
	registry        *Registry
	locator         Locator
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	evaluatorLogger EvaluatorLogger
	activity        *activity.Emitter
	validator       *Validator
}

func applyOptions(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the logger. Components log under a named sub-logger.
func WithLogger(logger hclog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithRegistry sets the registry used to resolve container ids.
func WithRegistry(registry *Registry) Option {
	return func(cfg *config) {
		cfg.registry = registry
	}
}

// WithLocator sets the locator used to find inherited definition documents.
func WithLocator(locator Locator) Option {
	return func(cfg *config) {
		cfg.locator = locator
	}
}

// WithEvaluator sets the engine formulas are compiled with.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a program cache for the default evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry replaces the default operators with registry.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn as a formula operator next to the defaults.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = DefaultFunctions(cfg.logger)
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithEvaluatorLogger attaches an evaluator logger.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.evaluatorLogger = noopEvaluatorLogger{}
			return
		}
		cfg.evaluatorLogger = logger
	}
}

// WithValidator sets the validator used for computed validation states.
func WithValidator(v *Validator) Option {
	return func(cfg *config) {
		cfg.validator = v
	}
}

func (cfg config) loggerOrDefault(name string) hclog.Logger {
	if cfg.logger == nil {
		return hclog.NewNullLogger()
	}
	return cfg.logger.Named(name)
}

func (cfg config) evaluatorLoggerOrDefault() EvaluatorLogger {
	if cfg.evaluatorLogger != nil {
		return cfg.evaluatorLogger
	}
	return noopEvaluatorLogger{}
}

// evaluatorOrDefault returns the configured engine or an expr evaluator wired
// with the configured cache and operators.
func (cfg config) evaluatorOrDefault() Evaluator {
	if cfg.evaluator != nil {
		return cfg.evaluator
	}
	functions := cfg.functions
	if functions == nil {
		functions = DefaultFunctions(cfg.logger)
	}
	exprOpts := []ExprEvaluatorOption{ExprWithFunctionRegistry(functions)}
	if cfg.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(cfg.programCache))
	}
	return NewExprEvaluator(exprOpts...)
}

func (cfg config) validatorOrDefault() *Validator {
	if cfg.validator != nil {
		return cfg.validator
	}
	return NewValidator()
}

// evaluatorEngineName reports the engine label used in logs.
func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if jsEvaluatorAvailable() && isJSEvaluator(e) {
			return "js"
		}
		return "custom"
	}
}

type jsEvaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the JS evaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

// JSWithProgramCache applies a ProgramCache to the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
