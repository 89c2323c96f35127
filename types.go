package settings

// RuleContext carries the inputs a formula is evaluated with.
type RuleContext struct {
	// Operands maps referenced setting keys to their resolved values.
	Operands map[string]any
	// Key and Property identify the setting property being computed, when known.
	Key      string
	Property string
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Operands == nil {
		ctx.Operands = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) label() string {
	if ctx.Key == "" {
		return "unknown"
	}
	if ctx.Property == "" {
		return ctx.Key
	}
	return ctx.Key + "." + ctx.Property
}

// Evaluator executes formulas against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable formula program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	operands []string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// CompileWithOperands declares the operand names a formula may reference.
// Engines that type-check ahead of time use it to declare variables.
func CompileWithOperands(names ...string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.operands = append(cfg.operands, names...)
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyCompileOption(&cfg)
		}
	}
	return cfg
}
