package mempool

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/pqueue"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/common/util"
	"github.com/agoralabs/agora/consensus"
	"github.com/agoralabs/agora/core"
)

var logger = util.GetLoggerForModule("mempool")

const defaultMaxNumTxs = 8192

// mempoolTransaction wraps a queued transaction. Priority decreases
// with arrival order so the max-queue drains oldest first.
type mempoolTransaction struct {
	tx       *core.Transaction
	priority int64
	index    int
}

func (mptx *mempoolTransaction) Priority() int64    { return mptx.priority }
func (mptx *mempoolTransaction) GetIndex() int      { return mptx.index }
func (mptx *mempoolTransaction) SetIndex(index int) { mptx.index = index }

//
// Mempool manages the transactions submitted by the clients: it
// validates and admits them, then feeds them to the consensus engine in
// arrival order.
//
type Mempool struct {
	mutex *sync.Mutex

	engine *consensus.Engine

	txCandidates *pqueue.PriorityQueue
	seen         map[common.Hash]bool
	arrivals     int64
	newTxs       chan struct{}

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// CreateMempool creates an instance of Mempool.
func CreateMempool(engine *consensus.Engine) *Mempool {
	return &Mempool{
		mutex:        &sync.Mutex{},
		engine:       engine,
		txCandidates: pqueue.CreatePriorityQueue(),
		seen:         make(map[common.Hash]bool),
		newTxs:       make(chan struct{}, 1),
		wg:           &sync.WaitGroup{},
	}
}

// ProcessTransaction validates and admits an incoming transaction.
func (mp *Mempool) ProcessTransaction(tx *core.Transaction) result.Result {
	if res := tx.Validate(); res.IsError() {
		return res
	}

	mp.mutex.Lock()
	defer mp.mutex.Unlock()

	txID := tx.ID()
	if mp.seen[txID] {
		logger.WithFields(log.Fields{"tx": txID}).Debug("Transaction already seen")
		return result.Error("transaction %v already submitted", txID).WithErrorCode(result.CodeInvalidTransaction)
	}
	if mp.txCandidates.NumElements() >= defaultMaxNumTxs {
		return result.Error("mempool is full")
	}

	admitted, err := mp.engine.Recorder().Admit(tx)
	if err != nil {
		return result.Error("failed to admit transaction: %v", err)
	}
	if !admitted {
		return result.Error("transaction %v already processed", txID).WithErrorCode(result.CodeInvalidTransaction)
	}

	mp.seen[txID] = true
	mp.arrivals++
	mp.txCandidates.Push(&mempoolTransaction{tx: tx, priority: -mp.arrivals})

	select {
	case mp.newTxs <- struct{}{}:
	default:
	}
	return result.OK
}

// Size returns the number of transactions waiting in the Mempool.
func (mp *Mempool) Size() int {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	return mp.txCandidates.NumElements()
}

// Flush removes all queued transactions.
func (mp *Mempool) Flush() {
	mp.mutex.Lock()
	defer mp.mutex.Unlock()
	for !mp.txCandidates.IsEmpty() {
		mp.txCandidates.Pop()
	}
}

// Start launches the dispatch loop.
func (mp *Mempool) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	mp.ctx = c
	mp.cancel = cancel

	go mp.dispatchLoop()
}

// Stop notifies all goroutines to stop without blocking.
func (mp *Mempool) Stop() {
	mp.cancel()
}

// Wait blocks until all goroutines stop.
func (mp *Mempool) Wait() {
	mp.wg.Wait()
}

func (mp *Mempool) dispatchLoop() {
	mp.wg.Add(1)
	defer mp.wg.Done()

	for {
		select {
		case <-mp.ctx.Done():
			mp.stopped = true
			return
		case <-mp.newTxs:
			mp.dispatch()
		}
	}
}

// dispatch drains the queue into the engine, backing off while the
// engine's queue is full.
func (mp *Mempool) dispatch() {
	for {
		mp.mutex.Lock()
		if mp.txCandidates.IsEmpty() {
			mp.mutex.Unlock()
			return
		}
		mptx := mp.txCandidates.Pop().(*mempoolTransaction)
		mp.mutex.Unlock()

		for {
			res := mp.engine.AddTransaction(mptx.tx)
			if res.IsOK() {
				break
			}
			select {
			case <-mp.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}
