package rpc

import (
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/consensus"
	"github.com/agoralabs/agora/core"
)

// ------------------------------- SubmitTransaction -----------------------------------

type SubmitTransactionArgs struct {
	Transaction *core.Transaction `json:"transaction"`
}

type SubmitTransactionResult struct {
	TxID common.Hash `json:"txId"`
}

// SubmitTransaction admits a transaction into the mempool.
func (t *AgoraRPCService) SubmitTransaction(r *http.Request, args *SubmitTransactionArgs, result *SubmitTransactionResult) error {
	if args.Transaction == nil {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "transaction is required"}
	}
	if res := t.mempool.ProcessTransaction(args.Transaction); res.IsError() {
		return &json2.Error{Code: json2.ErrorCode(res.Code), Message: res.Message}
	}
	result.TxID = args.Transaction.ID()
	return nil
}

// ------------------------------- GetTransactionStatus -----------------------------------

type GetTransactionStatusArgs struct {
	TxID common.Hash `json:"txId"`
}

type GetTransactionStatusResult struct {
	TxID    common.Hash              `json:"txId"`
	Status  string                   `json:"status"`
	History []consensus.StatusChange `json:"history"`
}

// GetTransactionStatus returns the current status and history of a
// transaction.
func (t *AgoraRPCService) GetTransactionStatus(r *http.Request, args *GetTransactionStatusArgs, result *GetTransactionStatusResult) error {
	record, err := t.recorder.Status(args.TxID)
	if err != nil {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "unknown transaction"}
	}
	result.TxID = args.TxID
	result.Status = record.Current.String()
	result.History = record.History
	return nil
}

// ------------------------------- GetRound -----------------------------------

type GetRoundArgs struct {
	TxID  common.Hash `json:"txId"`
	Round uint32      `json:"round"`
}

type GetRoundResult struct {
	Round *core.ConsensusRound `json:"round"`
}

// GetRound returns one persisted consensus round.
func (t *AgoraRPCService) GetRound(r *http.Request, args *GetRoundArgs, result *GetRoundResult) error {
	round, err := t.recorder.Round(args.TxID, args.Round)
	if err != nil {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "unknown round"}
	}
	result.Round = round
	return nil
}
