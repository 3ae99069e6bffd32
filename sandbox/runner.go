package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
)

// EchoRunner is a minimal contract runner for development and tests. It
// writes each block output into the contract's state under a
// "block/<id>" key and returns a JSON summary of the call. Block outputs
// that are not valid JSON are stored as JSON strings.
type EchoRunner struct{}

// NewEchoRunner creates an EchoRunner.
func NewEchoRunner() *EchoRunner {
	return &EchoRunner{}
}

// Run implements ContractRunner.
func (r *EchoRunner) Run(tx *core.Transaction, blockOutputs map[string]common.Bytes) (common.Bytes, map[string]common.Bytes, error) {
	delta := make(map[string]common.Bytes, len(blockOutputs))
	for id, out := range blockOutputs {
		stored, err := common.CanonicalizeJSON(out)
		if err != nil {
			stored, err = json.Marshal(string(out))
			if err != nil {
				return nil, nil, fmt.Errorf("block %v output: %v", id, err)
			}
		}
		delta[fmt.Sprintf("%s/block/%s", tx.Contract, id)] = stored
	}

	ret, err := json.Marshal(map[string]interface{}{
		"contract": tx.Contract,
		"method":   tx.Method,
		"blocks":   len(blockOutputs),
	})
	if err != nil {
		return nil, nil, err
	}
	return ret, delta, nil
}
