package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument marks a serialized container missing required structure.
	ErrInvalidDocument = errors.New("settings: invalid document")
	// ErrIncorrectVersion marks a well-formed document with an unsupported version.
	ErrIncorrectVersion = errors.New("settings: incorrect version")
	// ErrContainerNotFound marks a container id that cannot be resolved.
	ErrContainerNotFound = errors.New("settings: container not found")
	// ErrDefinitionNotFound marks a definition container or setting key that cannot be resolved.
	ErrDefinitionNotFound = errors.New("settings: definition not found")
	// ErrSelfReference marks an operation that would make a stack reference itself.
	ErrSelfReference = errors.New("settings: container cannot reference itself")
	// ErrIndexOutOfRange marks a positional operation outside 0 <= index < len.
	ErrIndexOutOfRange = errors.New("settings: index out of range")
	// ErrInvalidIndexType marks a positional argument that is not an integer.
	ErrInvalidIndexType = errors.New("settings: index must be an integer")
	// ErrCyclicEvaluation marks a formula that transitively depends on itself.
	ErrCyclicEvaluation = errors.New("settings: cyclic evaluation")
	// ErrMissingAttribute marks a setting definition missing a required property.
	ErrMissingAttribute = errors.New("settings: missing required attribute")
	// ErrIllegalName marks a formula referencing a forbidden identifier.
	ErrIllegalName = errors.New("settings: illegal name in formula")
	// ErrReadOnly marks a write to a read-only container.
	ErrReadOnly = errors.New("settings: container is read-only")
	// ErrDuplicateContainer marks a registry insert with an id already in use.
	ErrDuplicateContainer = errors.New("settings: duplicate container id")
)

func invalidDocument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

func incorrectVersion(kind string, got any, want int) error {
	return fmt.Errorf("%w: %s version %v, expected %d", ErrIncorrectVersion, kind, got, want)
}

func indexOutOfRange(index, length int) error {
	return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, length)
}
