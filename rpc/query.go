package rpc

import (
	"net/http"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/store"
	"github.com/agoralabs/agora/version"
)

// ------------------------------- ReadState -----------------------------------

type ReadStateArgs struct {
	Key string `json:"key"`
}

type ReadStateResult struct {
	Key   string       `json:"key"`
	Value common.Bytes `json:"value"`
}

// ReadState reads one key of finalized contract state. Provisional
// values are never visible here.
func (t *AgoraRPCService) ReadState(r *http.Request, args *ReadStateArgs, result *ReadStateResult) error {
	value, err := t.pipeline.Get(args.Key)
	if err == store.ErrKeyNotFound {
		return &json2.Error{Code: json2.E_INVALID_REQ, Message: "key not found"}
	}
	if err != nil {
		return err
	}
	result.Key = args.Key
	result.Value = value
	return nil
}

// ------------------------------- GetVersion -----------------------------------

type GetVersionArgs struct {
}

type GetVersionResult struct {
	Version   string `json:"version"`
	GitHash   string `json:"git_hash"`
	Timestamp string `json:"timestamp"`
}

// GetVersion returns the build version of the running node.
func (t *AgoraRPCService) GetVersion(r *http.Request, args *GetVersionArgs, result *GetVersionResult) error {
	result.Version = version.Version
	result.GitHash = version.GitHash
	result.Timestamp = version.Timestamp
	return nil
}
