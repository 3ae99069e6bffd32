package node

import (
	"context"
	"sync"

	"github.com/spf13/viper"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/consensus"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/equivalence"
	"github.com/agoralabs/agora/ledger/state"
	mp "github.com/agoralabs/agora/mempool"
	"github.com/agoralabs/agora/rpc"
	sb "github.com/agoralabs/agora/sandbox"
	"github.com/agoralabs/agora/store"
	"github.com/agoralabs/agora/store/database"
	"github.com/agoralabs/agora/store/kvstore"
)

type Node struct {
	Store     store.Store
	Pipeline  *state.CommitPipeline
	Consensus *consensus.Engine
	Finality  *consensus.FinalityManager
	Mempool   *mp.Mempool
	RPC       *rpc.AgoraRPCServer

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type Params struct {
	Validators *core.ValidatorSet
	Provider   capability.Provider
	Runner     sb.ContractRunner
	DB         database.Database
}

func NewNode(params *Params) (*Node, error) {
	kv := kvstore.NewKVStore(params.DB)
	pipeline, err := state.NewCommitPipeline(params.DB, kv)
	if err != nil {
		return nil, err
	}

	recorder := consensus.NewStatusRecorder(kv)
	selector := consensus.NewCommitteeSelector(params.Validators)
	sandbox := sb.NewSandbox(params.Provider, params.Runner)
	evaluator := equivalence.NewEvaluator(params.Provider)

	engine := consensus.NewEngine(selector, sandbox, evaluator, pipeline, recorder)
	finality := consensus.NewFinalityManager(kv, pipeline, recorder, selector, engine)
	engine.SetFinalityManager(finality)
	mempool := mp.CreateMempool(engine)

	node := &Node{
		Store:     kv,
		Pipeline:  pipeline,
		Consensus: engine,
		Finality:  finality,
		Mempool:   mempool,

		wg: &sync.WaitGroup{},
	}

	if viper.GetBool(common.CfgRPCEnabled) {
		node.RPC = rpc.NewAgoraRPCServer(mempool, recorder, finality, pipeline)
	}

	return node, nil
}

// Start starts sub components and kicks off the main loop.
func (n *Node) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	n.ctx = c
	n.cancel = cancel

	n.Consensus.Start(n.ctx)
	n.Finality.Start(n.ctx)
	n.Mempool.Start(n.ctx)

	if n.RPC != nil {
		n.RPC.Start(n.ctx)
	}
}

// Stop notifies all sub components to stop without blocking.
func (n *Node) Stop() {
	n.cancel()
}

// Wait blocks until all sub components stop.
func (n *Node) Wait() {
	n.Consensus.Wait()
	n.Finality.Wait()
	n.Mempool.Wait()
	if n.RPC != nil {
		n.RPC.Wait()
	}
}
