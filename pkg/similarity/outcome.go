package similarity

import (
	"errors"
	"fmt"
)

// Kind classifies the result of a clustering stage.
type Kind int

const (
	// OK means the stage produced a usable value.
	OK Kind = iota
	// Degenerate means the input was valid but the result carries no
	// structure (every chunk is noise, or a metric is undefined).
	Degenerate
	// Failed means the stage could not run; Reason says why.
	Failed
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Degenerate:
		return "degenerate"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind travel as a string in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is embedded in every stage result.
type Outcome struct {
	Kind   Kind  `json:"kind"`
	Reason error `json:"-"`
}

// Input and degeneracy reasons.
var (
	ErrEmptyInput     = errors.New("empty input")
	ErrRaggedInput    = errors.New("rows have different lengths")
	ErrNonFinite      = errors.New("non-finite value in input")
	ErrLengthMismatch = errors.New("chunk and embedding counts differ")
	ErrInvalidConfig  = errors.New("invalid clustering config")
	ErrAllNoise       = errors.New("no cluster reached the minimum size")
	ErrTooFewLabels   = errors.New("fewer than two distinct labels")
	ErrTooManyLabels  = errors.New("every sample has its own label")
)

func ok() Outcome { return Outcome{Kind: OK} }

func degenerate(reason error) Outcome { return Outcome{Kind: Degenerate, Reason: reason} }

func failed(reason error) Outcome { return Outcome{Kind: Failed, Reason: reason} }

// IsOK reports whether the stage produced a usable value.
func (o Outcome) IsOK() bool { return o.Kind == OK }

// Err returns the reason for Failed outcomes and nil otherwise.
func (o Outcome) Err() error {
	if o.Kind != Failed {
		return nil
	}
	if o.Reason == nil {
		return errors.New("clustering failed")
	}
	return o.Reason
}

func (o Outcome) String() string {
	if o.Reason == nil {
		return o.Kind.String()
	}
	return o.Kind.String() + ": " + o.Reason.Error()
}

// recovered converts a panic value into a Failed outcome reason.
func recovered(stage string, v any) error {
	if err, isErr := v.(error); isErr {
		return fmt.Errorf("%s panicked: %w", stage, err)
	}
	return fmt.Errorf("%s panicked: %v", stage, v)
}
