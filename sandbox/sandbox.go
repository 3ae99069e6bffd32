package sandbox

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/common/util"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/metrics"
)

var logger = util.GetLoggerForModule("sandbox")

// ContractRunner executes the deterministic portion of a transaction.
// Run receives the raw outputs of the already-resolved non-deterministic
// blocks and must be a pure function of the transaction and those
// outputs, never of wall clock, randomness, or external I/O.
type ContractRunner interface {
	Run(tx *core.Transaction, blockOutputs map[string]common.Bytes) (common.Bytes, map[string]common.Bytes, error)
}

// Sandbox runs transactions on behalf of one validator: it resolves the
// declared non-deterministic blocks through the capability provider,
// then hands their outputs to the contract runner. Block outputs are
// captured verbatim so the coordinator can judge equivalence on exactly
// what each validator observed.
type Sandbox struct {
	provider capability.Provider
	runner   ContractRunner

	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

// NewSandbox creates a sandbox over the given provider and runner.
func NewSandbox(provider capability.Provider, runner ContractRunner) *Sandbox {
	return &Sandbox{
		provider:   provider,
		runner:     runner,
		maxRetries: viper.GetInt(common.CfgSandboxMaxRetries),
		backoff:    time.Duration(viper.GetInt(common.CfgSandboxRetryBackoffMs)) * time.Millisecond,
		timeout:    time.Duration(viper.GetInt(common.CfgSandboxCapabilityTimeoutSecs)) * time.Second,
	}
}

// Execute produces the validator's candidate result for the
// transaction, or an ExecutionFault: capability failures surface as one
// once the retry budget is exhausted, as do contract failures and
// non-serializable results.
func (sb *Sandbox) Execute(ctx context.Context, tx *core.Transaction, validatorID string) (*core.CandidateResult, result.Result) {
	txID := tx.ID()
	blockOutputs := make(map[string]common.Bytes, len(tx.Blocks))
	for _, block := range tx.Blocks {
		out, err := sb.invokeWithRetry(ctx, block)
		if err != nil {
			logger.WithFields(log.Fields{
				"tx":        txID,
				"validator": validatorID,
				"block":     block.ID,
				"error":     err,
			}).Warn("Block invocation failed")
			return nil, result.ExecutionFault("block %v: %v", block.ID, err)
		}
		blockOutputs[block.ID] = out
	}

	ret, delta, err := sb.runner.Run(tx, blockOutputs)
	if err != nil {
		return nil, result.ExecutionFault("contract %v.%v: %v", tx.Contract, tx.Method, err)
	}

	// The deterministic portion enters digests and the state pipeline,
	// so it must canonicalize cleanly.
	canonicalRet, err := common.CanonicalizeJSON(ret)
	if err != nil {
		return nil, result.ExecutionFault("return value of %v.%v: %v", tx.Contract, tx.Method, err)
	}
	canonicalDelta := make(map[string]common.Bytes, len(delta))
	for key, val := range delta {
		cv, err := common.CanonicalizeJSON(val)
		if err != nil {
			return nil, result.ExecutionFault("state delta key %v: %v", key, err)
		}
		canonicalDelta[key] = cv
	}

	res := &core.CandidateResult{
		TxID:         txID,
		Validator:    validatorID,
		ReturnValue:  canonicalRet,
		StateDelta:   canonicalDelta,
		BlockOutputs: blockOutputs,
	}
	res.Seal()
	return res, result.OK
}

// invokeWithRetry invokes one block with exponential backoff. Only
// capability faults are retried; context cancellation aborts the
// remaining budget immediately.
func (sb *Sandbox) invokeWithRetry(ctx context.Context, block core.BlockDecl) (common.Bytes, error) {
	spec := capability.BlockSpec{
		Kind:    block.Kind,
		Payload: block.Payload,
		Mode:    capability.ModeExecution,
	}

	var lastErr error
	backoff := sb.backoff
	for attempt := 0; attempt <= sb.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, sb.timeout)
		out, err := sb.provider.Invoke(callCtx, spec)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !capability.IsFault(err) {
			break
		}
		metrics.CapabilityRetriesTotal.Inc()
		logger.WithFields(log.Fields{
			"block":   block.ID,
			"attempt": attempt,
			"error":   err,
		}).Debug("Retrying block invocation")
	}
	return nil, lastErr
}
