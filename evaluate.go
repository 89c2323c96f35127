package settings

import (
	"errors"
	"fmt"
)

// ErrEmptyExpression is returned when an ad hoc formula is blank.
var ErrEmptyExpression = errors.New("settings: expression must not be empty")

// Evaluate compiles code with the stack's engine and evaluates it against the
// stack, the same way a stored formula would be. A leading "=" is accepted.
func (s *ContainerStack) Evaluate(code string) (any, error) {
	if len(code) > 0 && code[0] == '=' {
		code = code[1:]
	}
	fn, err := ParseSettingFunction(code,
		FunctionWithEvaluator(s.cfg.evaluatorOrDefault()),
		FunctionWithLogger(s.cfg.evaluatorLoggerOrDefault()),
	)
	if err != nil {
		return nil, err
	}
	if fn.Code() == "" {
		return nil, ErrEmptyExpression
	}
	if !fn.Valid() {
		return nil, fmt.Errorf("settings: evaluate %q: %w", code, fn.Err())
	}
	return fn.Evaluate(s)
}
