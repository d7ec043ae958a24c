package tx

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// Build and validation errors.
var (
	ErrNoInputs               = errors.New("transaction has no inputs")
	ErrNoOutputs              = errors.New("transaction has no outputs")
	ErrDuplicateInput         = errors.New("duplicate input")
	ErrInvalidInputValue      = errors.New("invalid input value")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrNegativeFee            = errors.New("fee must not be negative")
	ErrNoDestination          = errors.New("no destination address")
	ErrNoChangeAddress        = errors.New("no change address")
	ErrDustOutput             = errors.New("output is dust")
	ErrUnsupportedScript      = errors.New("unsupported script type")
	ErrInsufficientInputValue = errors.New("insufficient input value")
	ErrValueMismatch          = errors.New("inputs do not equal outputs plus fee")
	ErrValueOutOfRange        = errors.New("value exceeds max supply")
)

// Validate checks the request's structure and that it conserves value:
// the inputs pay exactly the outputs plus the fee.
func (r *Request) Validate() error {
	if err := checkInputs(r.Inputs); err != nil {
		return err
	}
	if len(r.Outputs) == 0 {
		return ErrNoOutputs
	}
	if r.Fee < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeFee, r.Fee)
	}
	if r.Fee > btcutil.MaxSatoshi {
		return fmt.Errorf("%w: fee %v", ErrValueOutOfRange, r.Fee)
	}
	for i, out := range r.Outputs {
		if out.Value <= 0 {
			return fmt.Errorf("output %d: %w", i, ErrInvalidAmount)
		}
		if out.Value > btcutil.MaxSatoshi {
			return fmt.Errorf("output %d: %w", i, ErrValueOutOfRange)
		}
		if isDust(out.Value, out.PkScript) {
			return fmt.Errorf("output %d: %w", i, ErrDustOutput)
		}
	}
	if in, out := r.TotalIn(), r.TotalOut(); in != out+r.Fee {
		return fmt.Errorf("%w: in %v, out %v, fee %v", ErrValueMismatch, in, out, r.Fee)
	}
	return nil
}
