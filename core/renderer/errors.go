package renderer

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrContract is the cause of every ContractError.
	ErrContract = errors.New("contract violation")

	// ErrDescriptorAllocation is returned when a descriptor set could not be
	// allocated even from a freshly created pool.
	ErrDescriptorAllocation = errors.New("descriptor set allocation failed after retry")
)

// ContractError reports misuse of a renderer object, such as recording into
// a command that is not recording or writing past the end of a buffer.
type ContractError struct {
	Op     string
	Reason string
}

func (e *ContractError) Error() string {
	return e.Op + ": " + e.Reason
}

// Cause returns ErrContract.
func (e *ContractError) Cause() error {
	return ErrContract
}

// Unwrap returns ErrContract.
func (e *ContractError) Unwrap() error {
	return ErrContract
}

func contractf(op, format string, args ...interface{}) error {
	return &ContractError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsContract reports whether err was caused by a contract violation.
func IsContract(err error) bool {
	return errors.Cause(err) == ErrContract
}
