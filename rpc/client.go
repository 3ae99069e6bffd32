package rpc

import (
	"context"

	rpcc "github.com/ybbus/jsonrpc/v3"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
)

// Client is a JSON-RPC client for an Agora node.
type Client struct {
	rpc rpcc.RPCClient
}

// NewClient creates a client for the given endpoint, e.g.
// "http://127.0.0.1:17888/rpc".
func NewClient(endpoint string) *Client {
	return &Client{
		rpc: rpcc.NewClient(endpoint),
	}
}

// SubmitTransaction submits a transaction for consensus.
func (c *Client) SubmitTransaction(ctx context.Context, tx *core.Transaction) (*SubmitTransactionResult, error) {
	result := &SubmitTransactionResult{}
	err := c.rpc.CallFor(ctx, result, "agora.SubmitTransaction", &SubmitTransactionArgs{Transaction: tx})
	return result, err
}

// GetTransactionStatus returns the status of a transaction.
func (c *Client) GetTransactionStatus(ctx context.Context, txID common.Hash) (*GetTransactionStatusResult, error) {
	result := &GetTransactionStatusResult{}
	err := c.rpc.CallFor(ctx, result, "agora.GetTransactionStatus", &GetTransactionStatusArgs{TxID: txID})
	return result, err
}

// GetRound returns one consensus round of a transaction.
func (c *Client) GetRound(ctx context.Context, txID common.Hash, round uint32) (*GetRoundResult, error) {
	result := &GetRoundResult{}
	err := c.rpc.CallFor(ctx, result, "agora.GetRound", &GetRoundArgs{TxID: txID, Round: round})
	return result, err
}

// SubmitAppeal opens a bonded challenge against a provisional result.
func (c *Client) SubmitAppeal(ctx context.Context, txID common.Hash, challenger string, bond uint64) (*SubmitAppealResult, error) {
	result := &SubmitAppealResult{}
	err := c.rpc.CallFor(ctx, result, "agora.SubmitAppeal", &SubmitAppealArgs{TxID: txID, Challenger: challenger, Bond: bond})
	return result, err
}

// GetAppealStatus returns the appeal at the given depth.
func (c *Client) GetAppealStatus(ctx context.Context, txID common.Hash, depth uint32) (*GetAppealStatusResult, error) {
	result := &GetAppealStatusResult{}
	err := c.rpc.CallFor(ctx, result, "agora.GetAppealStatus", &GetAppealStatusArgs{TxID: txID, Depth: depth})
	return result, err
}

// GetFinality returns the finality record of a transaction.
func (c *Client) GetFinality(ctx context.Context, txID common.Hash) (*GetFinalityResult, error) {
	result := &GetFinalityResult{}
	err := c.rpc.CallFor(ctx, result, "agora.GetFinality", &GetFinalityArgs{TxID: txID})
	return result, err
}

// ReadState reads one key of finalized contract state.
func (c *Client) ReadState(ctx context.Context, key string) (*ReadStateResult, error) {
	result := &ReadStateResult{}
	err := c.rpc.CallFor(ctx, result, "agora.ReadState", &ReadStateArgs{Key: key})
	return result, err
}

// GetVersion returns the node's build version.
func (c *Client) GetVersion(ctx context.Context) (*GetVersionResult, error) {
	result := &GetVersionResult{}
	err := c.rpc.CallFor(ctx, result, "agora.GetVersion", &GetVersionArgs{})
	return result, err
}
