package cmd

import (
	"context"
	"os"
	"os/signal"
	"path"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/node"
	"github.com/agoralabs/agora/sandbox"
	"github.com/agoralabs/agora/store/database/backend"
	"github.com/agoralabs/agora/version"
)

// startCmd runs the Agora node.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Agora node",
	Run:   runStart,
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) {
	log.WithFields(log.Fields{
		"version":   version.Version,
		"buildTime": version.Timestamp,
		"gitHash":   version.GitHash,
	}).Info("Starting Agora node")

	dataPath := viper.GetString(common.CfgDataPath)
	if dataPath == "" {
		dataPath = cfgPath
	}
	db, err := backend.NewLDBDatabase(path.Join(dataPath, "db", "main"), 256, 0)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("Failed to open database")
	}
	defer db.Close()

	validators, err := parseValidators(viper.GetString(common.CfgConsensusValidators))
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("Failed to parse validator registry")
	}

	n, err := node.NewNode(&node.Params{
		Validators: validators,
		Provider:   capability.NewHTTPProvider(),
		Runner:     sandbox.NewEchoRunner(),
		DB:         db,
	})
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("Failed to create node")
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("Shutting down...")
		cancel()
		n.Stop()
	}()

	n.Wait()
}

// parseValidators parses the registry snapshot, a comma separated list of
// "id:stake" pairs, e.g. "v1:1000,v2:800,v3:500".
func parseValidators(s string) (*core.ValidatorSet, error) {
	registry := core.NewValidatorSet()
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		stake := uint64(1)
		if len(parts) == 2 {
			v, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
			if err != nil {
				return nil, err
			}
			stake = v
		}
		registry.AddValidator(core.NewValidator(strings.TrimSpace(parts[0]), stake))
	}
	return registry, nil
}
