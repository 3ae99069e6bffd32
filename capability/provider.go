package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
)

// Mode indicates what a capability invocation is for. Arbitration
// invocations carry equivalence questions rather than contract
// workloads, and providers may route them to a stronger model.
type Mode string

const (
	ModeExecution   Mode = "execution"
	ModeArbitration Mode = "arbitration"
)

// BlockSpec describes one capability invocation.
type BlockSpec struct {
	Kind    core.CapabilityKind `json:"kind"`
	Payload common.Bytes        `json:"payload"`
	Mode    Mode                `json:"mode"`
}

// Provider performs non-deterministic capability invocations (LLM
// inference, web retrieval) on behalf of the sandbox and the
// equivalence evaluator. Implementations must honor ctx cancellation.
type Provider interface {
	Invoke(ctx context.Context, spec BlockSpec) (common.Bytes, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, spec BlockSpec) (common.Bytes, error)

// Invoke calls f.
func (f ProviderFunc) Invoke(ctx context.Context, spec BlockSpec) (common.Bytes, error) {
	return f(ctx, spec)
}

// Fault is a capability invocation failure. The sandbox distinguishes
// provider faults from contract execution faults when classifying a
// failed run.
type Fault struct {
	Kind core.CapabilityKind
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("capability %v fault: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err as a capability fault.
func NewFault(kind core.CapabilityKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}

// IsFault reports whether err is (or wraps) a capability fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
