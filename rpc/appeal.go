package rpc

import (
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
)

// ------------------------------- SubmitAppeal -----------------------------------

type SubmitAppealArgs struct {
	TxID       common.Hash `json:"txId"`
	Challenger string      `json:"challenger"`
	Bond       uint64      `json:"bond"`
}

type SubmitAppealResult struct {
	TxID  common.Hash `json:"txId"`
	Depth uint32      `json:"depth"`
}

// SubmitAppeal opens a bonded challenge against a provisional result.
func (t *AgoraRPCService) SubmitAppeal(r *http.Request, args *SubmitAppealArgs, result *SubmitAppealResult) error {
	appeal := &core.Appeal{
		TxID:       args.TxID,
		Challenger: args.Challenger,
		Bond:       args.Bond,
	}
	if res := t.finality.SubmitAppeal(appeal); res.IsError() {
		return &json2.Error{Code: json2.ErrorCode(res.Code), Message: res.Message}
	}
	result.TxID = args.TxID
	result.Depth = appeal.Depth
	return nil
}

// ------------------------------- GetAppealStatus -----------------------------------

type GetAppealStatusArgs struct {
	TxID  common.Hash `json:"txId"`
	Depth uint32      `json:"depth"`
}

type GetAppealStatusResult struct {
	Appeal *core.Appeal `json:"appeal"`
}

// GetAppealStatus returns the appeal at the given depth.
func (t *AgoraRPCService) GetAppealStatus(r *http.Request, args *GetAppealStatusArgs, result *GetAppealStatusResult) error {
	appeal, err := t.finality.AppealStatus(args.TxID, args.Depth)
	if err != nil {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "unknown appeal"}
	}
	result.Appeal = appeal
	return nil
}

// ------------------------------- GetFinality -----------------------------------

type GetFinalityArgs struct {
	TxID common.Hash `json:"txId"`
}

type GetFinalityResult struct {
	Record *core.FinalityRecord `json:"record"`
}

// GetFinality returns the current finality record of a transaction.
func (t *AgoraRPCService) GetFinality(r *http.Request, args *GetFinalityArgs, result *GetFinalityResult) error {
	record, ok := t.finality.Record(args.TxID)
	if !ok {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "no finality record"}
	}
	result.Record = record
	return nil
}
