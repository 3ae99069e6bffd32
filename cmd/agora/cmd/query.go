package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/rpc"
)

var (
	queryTxID       string
	queryKey        string
	queryDepth      uint32
	appealChallengr string
	appealBond      uint64
)

// queryCmd groups read-only queries against a running node.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a running Agora node",
}

var queryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the status of a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.GetTransactionStatus(context.Background(), common.HexToHash(queryTxID))
		printResult(result, err)
	},
}

var queryFinalityCmd = &cobra.Command{
	Use:   "finality",
	Short: "Query the finality record of a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.GetFinality(context.Background(), common.HexToHash(queryTxID))
		printResult(result, err)
	},
}

var queryStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Read a key of finalized contract state",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.ReadState(context.Background(), queryKey)
		printResult(result, err)
	},
}

var queryAppealCmd = &cobra.Command{
	Use:   "appeal",
	Short: "Query the appeal of a transaction at a given depth",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.GetAppealStatus(context.Background(), common.HexToHash(queryTxID), queryDepth)
		printResult(result, err)
	},
}

var queryVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Query the build version of the node",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.GetVersion(context.Background())
		printResult(result, err)
	},
}

// appealCmd submits a bonded challenge against a provisional result.
var appealCmd = &cobra.Command{
	Use:   "appeal",
	Short: "Challenge a provisional result",
	Run: func(cmd *cobra.Command, args []string) {
		client := rpc.NewClient(rpcEndpoint())
		result, err := client.SubmitAppeal(context.Background(),
			common.HexToHash(queryTxID), appealChallengr, appealBond)
		printResult(result, err)
	},
}

func printResult(result interface{}, err error) {
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func init() {
	queryStatusCmd.Flags().StringVar(&queryTxID, "tx", "", "transaction hash")
	queryStatusCmd.MarkFlagRequired("tx")

	queryFinalityCmd.Flags().StringVar(&queryTxID, "tx", "", "transaction hash")
	queryFinalityCmd.MarkFlagRequired("tx")

	queryStateCmd.Flags().StringVar(&queryKey, "key", "", "state key, e.g. \"oracle/answer\"")
	queryStateCmd.MarkFlagRequired("key")

	queryAppealCmd.Flags().StringVar(&queryTxID, "tx", "", "transaction hash")
	queryAppealCmd.Flags().Uint32Var(&queryDepth, "depth", 0, "appeal depth")
	queryAppealCmd.MarkFlagRequired("tx")

	appealCmd.Flags().StringVar(&queryTxID, "tx", "", "transaction hash")
	appealCmd.Flags().StringVar(&appealChallengr, "challenger", "", "challenger identity")
	appealCmd.Flags().Uint64Var(&appealBond, "bond", 1, "bond attached to the challenge")
	appealCmd.MarkFlagRequired("tx")
	appealCmd.MarkFlagRequired("challenger")

	queryCmd.AddCommand(queryStatusCmd)
	queryCmd.AddCommand(queryFinalityCmd)
	queryCmd.AddCommand(queryStateCmd)
	queryCmd.AddCommand(queryAppealCmd)
	queryCmd.AddCommand(queryVersionCmd)

	RootCmd.AddCommand(queryCmd)
	RootCmd.AddCommand(appealCmd)
}
