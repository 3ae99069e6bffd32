package consensus

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/agoralabs/agora/core"
)

// collectLeader solicits the leader's candidate result, rotating to the
// next committee member on failure or timeout. Returns nil once every
// member has had a turn without producing a result.
func (e *Engine) collectLeader(ctx context.Context, tx *core.Transaction, committee *core.Committee, round uint32) (*core.CandidateResult, string) {
	for attempt := 0; attempt < committee.Size(); attempt++ {
		leader := committee.Leader(round, attempt)

		leaderCtx, cancel := context.WithTimeout(ctx, e.leaderTimeout)
		res, execRes := e.executor.Execute(leaderCtx, tx, leader.ID())
		cancel()

		if execRes.IsOK() {
			return res, leader.ID()
		}
		logger.WithFields(log.Fields{
			"tx":      tx.ID(),
			"round":   round,
			"attempt": attempt,
			"leader":  leader.ID(),
			"error":   execRes.Message,
		}).Warn("Leader failed, rotating")

		if ctx.Err() != nil {
			return nil, ""
		}
	}
	return nil, ""
}
