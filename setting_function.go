package settings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// illegalNames may not appear in a formula.
var illegalNames = map[string]struct{}{
	"sys":        {},
	"os":         {},
	"import":     {},
	"__import__": {},
	"eval":       {},
	"exec":       {},
	"subprocess": {},
}

// builtinNames are callable or reserved names that never refer to a setting.
var builtinNames = map[string]struct{}{
	"math": {}, "debug": {}, "len": {}, "max": {}, "min": {}, "sum": {}, "abs": {},
	"ceil": {}, "floor": {}, "round": {}, "int": {}, "float": {}, "string": {},
	"mean": {}, "median": {}, "all": {}, "any": {}, "none": {}, "one": {},
	"filter": {}, "map": {}, "count": {}, "find": {}, "reduce": {}, "first": {},
	"last": {}, "keys": {}, "values": {}, "sort": {}, "upper": {}, "lower": {},
	"trim": {}, "split": {}, "join": {}, "type": {}, "now": {}, "duration": {},
	"true": {}, "false": {}, "nil": {}, "null": {}, "undefined": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "let": {}, "if": {}, "else": {},
	"var": {}, "return": {}, "function": {}, "typeof": {}, "new": {}, "this": {},
	"call": {},
}

var defaultFunctionEvaluator = sync.OnceValue(func() Evaluator {
	return NewExprEvaluator(ExprWithFunctionRegistry(DefaultFunctions(nil)))
})

// SettingFunction is a formula over other settings' values, evaluated lazily
// against a resolution context.
type SettingFunction struct {
	code      string
	used      []string
	err       error
	evaluator Evaluator
	rule      CompiledRule
	logger    EvaluatorLogger
}

// FunctionOption configures a SettingFunction.
type FunctionOption func(*SettingFunction)

// FunctionWithEvaluator compiles the formula with e instead of the default expr engine.
func FunctionWithEvaluator(e Evaluator) FunctionOption {
	return func(f *SettingFunction) {
		if e != nil {
			f.evaluator = e
		}
	}
}

// FunctionWithLogger reports each evaluation to logger.
func FunctionWithLogger(logger EvaluatorLogger) FunctionOption {
	return func(f *SettingFunction) {
		f.logger = logger
	}
}

// NewSettingFunction parses code. Invalid formulas are still returned;
// Valid reports false and Evaluate returns the parse error.
func NewSettingFunction(code string, opts ...FunctionOption) *SettingFunction {
	f, _ := ParseSettingFunction(code, opts...)
	return f
}

// ParseSettingFunction parses code and fails with ErrIllegalName when the
// formula references a forbidden identifier. Syntax errors do not fail the
// parse; they are kept on the function.
func ParseSettingFunction(code string, opts ...FunctionOption) (*SettingFunction, error) {
	f := &SettingFunction{code: strings.TrimSpace(code)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.evaluator == nil {
		f.evaluator = defaultFunctionEvaluator()
	}
	if f.logger == nil {
		f.logger = noopEvaluatorLogger{}
	}

	identifiers, err := extractIdentifiers(f.code)
	if err != nil {
		identifiers = scanIdentifiers(f.code)
	}
	for _, name := range identifiers {
		if _, forbidden := illegalNames[name]; forbidden {
			f.err = fmt.Errorf("%w: %q in %q", ErrIllegalName, name, f.code)
			return f, f.err
		}
	}
	f.used = settingKeys(identifiers, f.evaluator)

	rule, err := f.evaluator.Compile(f.code, CompileWithOperands(f.used...))
	if err != nil {
		f.err = wrapEvaluationError(evaluatorEngineName(f.evaluator), f.code, "", err)
		return f, nil
	}
	f.rule = rule
	return f, nil
}

// Code returns the formula source.
func (f *SettingFunction) Code() string {
	return f.code
}

// Valid reports whether the formula parsed and compiled.
func (f *SettingFunction) Valid() bool {
	return f != nil && f.err == nil && f.rule != nil
}

// Err returns the parse or compile error, if any.
func (f *SettingFunction) Err() error {
	return f.err
}

// UsedSettingKeys returns the setting keys the formula references, sorted.
func (f *SettingFunction) UsedSettingKeys() []string {
	return append([]string(nil), f.used...)
}

// Equal compares formulas by source.
func (f *SettingFunction) Equal(other *SettingFunction) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.code == other.code
}

func (f *SettingFunction) String() string {
	return "=" + f.code
}

// Evaluate computes the formula, resolving every referenced key's value from
// ctx. Referenced formulas are evaluated recursively; a key that depends on
// itself fails with ErrCyclicEvaluation.
func (f *SettingFunction) Evaluate(ctx ValueProvider) (any, error) {
	return f.evaluate(ctx, newEvaluation())
}

func (f *SettingFunction) evaluate(ctx ValueProvider, ev *evaluation) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.rule == nil {
		return nil, fmt.Errorf("settings: formula %q not compiled", f.code)
	}
	operands := make(map[string]any, len(f.used))
	for _, key := range f.used {
		value, ok, err := ev.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			operands[key] = value
		}
	}

	key := ev.current()
	start := time.Now()
	result, err := f.rule.Evaluate(RuleContext{Operands: operands, Key: key, Property: "value"})
	err = wrapEvaluationError(evaluatorEngineName(f.evaluator), f.code, key, err)
	f.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   evaluatorEngineName(f.evaluator),
		Expr:     f.code,
		Key:      key,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// evaluation threads the keys currently being resolved through nested
// formula calls.
type evaluation struct {
	inProgress map[string]struct{}
	path       []string
}

func newEvaluation() *evaluation {
	return &evaluation{inProgress: map[string]struct{}{}}
}

func (ev *evaluation) enter(key string) {
	ev.inProgress[key] = struct{}{}
	ev.path = append(ev.path, key)
}

func (ev *evaluation) leave(key string) {
	delete(ev.inProgress, key)
	if n := len(ev.path); n > 0 && ev.path[n-1] == key {
		ev.path = ev.path[:n-1]
	}
}

func (ev *evaluation) current() string {
	if len(ev.path) == 0 {
		return ""
	}
	return ev.path[len(ev.path)-1]
}

// resolve returns the value of key. ok is false when no container provides it.
func (ev *evaluation) resolve(ctx ValueProvider, key string) (any, bool, error) {
	if _, busy := ev.inProgress[key]; busy {
		cycle := append(append([]string(nil), ev.path...), key)
		return nil, false, fmt.Errorf("%w: %s", ErrCyclicEvaluation, strings.Join(cycle, " -> "))
	}
	if ctx == nil {
		return nil, false, nil
	}
	raw, ok := ctx.RawProperty(key, "value")
	if !ok {
		return nil, false, nil
	}
	fn := raw.Function()
	if fn == nil {
		return raw.Literal(), raw.Literal() != nil, nil
	}
	ev.enter(key)
	defer ev.leave(key)
	value, err := fn.evaluate(ctx, ev)
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// extractIdentifiers walks the expr AST collecting identifiers and string
// literals passed directly to function calls.
func extractIdentifiers(code string) ([]string, error) {
	if code == "" {
		return nil, nil
	}
	tree, err := parser.Parse(code)
	if err != nil {
		return nil, err
	}
	collector := &identifierCollector{}
	ast.Walk(&tree.Node, collector)
	return collector.names, nil
}

type identifierCollector struct {
	names []string
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.names = append(c.names, n.Value)
	case *ast.CallNode:
		for _, arg := range n.Arguments {
			if s, ok := arg.(*ast.StringNode); ok {
				c.names = append(c.names, s.Value)
			}
		}
	}
}

// scanIdentifiers is a lexical fallback for formulas written for engines
// whose syntax the expr parser rejects.
func scanIdentifiers(code string) []string {
	var names []string
	runes := []rune(code)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == '"' || r == '\'' || r == '`':
			i = skipQuoted(runes, i)
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			if start > 0 && runes[start-1] == '.' {
				continue
			}
			names = append(names, string(runes[start:i]))
		case unicode.IsDigit(r):
			for i < len(runes) && (unicode.IsDigit(runes[i]) || unicode.IsLetter(runes[i]) || runes[i] == '.') {
				i++
			}
		default:
			i++
		}
	}
	return names
}

func skipQuoted(runes []rune, i int) int {
	quote := runes[i]
	for i++; i < len(runes); i++ {
		if runes[i] == '\\' {
			i++
			continue
		}
		if runes[i] == quote {
			return i + 1
		}
	}
	return i
}

func settingKeys(identifiers []string, e Evaluator) []string {
	functions := map[string]struct{}{}
	if named, ok := e.(interface{ FunctionNames() []string }); ok {
		for _, name := range named.FunctionNames() {
			functions[name] = struct{}{}
		}
	}
	seen := map[string]struct{}{}
	keys := make([]string, 0, len(identifiers))
	for _, name := range identifiers {
		if name == "" {
			continue
		}
		if _, ok := builtinNames[name]; ok {
			continue
		}
		if _, ok := functions[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
