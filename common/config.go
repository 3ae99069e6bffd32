package common

import (
	"github.com/spf13/viper"
)

const (
	// CfgConfigPath sets the config directory.
	CfgConfigPath = "config.path"
	// CfgDataPath sets the data directory (defaults to the config path).
	CfgDataPath = "data.path"

	// CfgConsensusCommitteeSize defines the number of validators drawn into a committee.
	CfgConsensusCommitteeSize = "consensus.committeeSize"
	// CfgConsensusMinCommitteeSize defines the minimum legal committee size.
	CfgConsensusMinCommitteeSize = "consensus.minCommitteeSize"
	// CfgConsensusMinQuorumRatio defines the fraction of the committee that must respond for a round to proceed.
	CfgConsensusMinQuorumRatio = "consensus.minQuorumRatio"
	// CfgConsensusMaxRounds defines the round ceiling per transaction, after which it fails outright.
	CfgConsensusMaxRounds = "consensus.maxRounds"
	// CfgConsensusLeaderTimeoutSecs defines how long to wait for the leader's candidate result.
	CfgConsensusLeaderTimeoutSecs = "consensus.leaderTimeoutSecs"
	// CfgConsensusCollectTimeoutSecs defines how long to wait for the remaining candidate results.
	CfgConsensusCollectTimeoutSecs = "consensus.collectTimeoutSecs"
	// CfgConsensusMessageQueueSize defines the capacity of the engine's transaction queue.
	CfgConsensusMessageQueueSize = "consensus.messageQueueSize"
	// CfgConsensusValidators lists the validator registry snapshot as "id:stake" pairs.
	CfgConsensusValidators = "consensus.validators"

	// CfgAppealWindowSecs defines the challenge window length after provisional acceptance.
	CfgAppealWindowSecs = "appeal.windowSecs"
	// CfgAppealMaxDepth defines the maximum appeal-chain depth.
	CfgAppealMaxDepth = "appeal.maxDepth"
	// CfgAppealExpansionSize defines how many extra validators an appeal round adds.
	CfgAppealExpansionSize = "appeal.expansionSize"
	// CfgAppealMinBond defines the minimum bond accepted with an appeal.
	CfgAppealMinBond = "appeal.minBond"
	// CfgAppealSweepIntervalMs defines how often open challenge windows are checked.
	CfgAppealSweepIntervalMs = "appeal.sweepIntervalMs"

	// CfgSandboxMaxRetries defines the retry budget for a capability call.
	CfgSandboxMaxRetries = "sandbox.maxRetries"
	// CfgSandboxRetryBackoffMs defines the initial retry backoff; it doubles per attempt.
	CfgSandboxRetryBackoffMs = "sandbox.retryBackoffMs"
	// CfgSandboxCapabilityTimeoutSecs bounds a single capability invocation.
	CfgSandboxCapabilityTimeoutSecs = "sandbox.capabilityTimeoutSecs"

	// CfgCapabilityEndpoint sets the URL of the external capability bridge.
	CfgCapabilityEndpoint = "capability.endpoint"

	// CfgRPCEnabled sets whether to run the RPC service.
	CfgRPCEnabled = "rpc.enabled"
	// CfgRPCAddress sets the binding address of the RPC service.
	CfgRPCAddress = "rpc.address"
	// CfgRPCPort sets the port of the RPC service.
	CfgRPCPort = "rpc.port"
	// CfgRPCMaxConnections limits concurrent connections accepted by the RPC server.
	CfgRPCMaxConnections = "rpc.maxConnections"
	// CfgRPCTimeoutSecs sets the per-request handler timeout.
	CfgRPCTimeoutSecs = "rpc.timeoutSecs"

	// CfgLogLevels sets the log level per module, e.g. "*:info,consensus:debug".
	CfgLogLevels = "log.levels"
)

// InitialConfig is the default configuration produced by the init command.
const InitialConfig = `# Agora configuration
consensus:
  committeeSize: 5
  maxRounds: 3
appeal:
  windowSecs: 30
rpc:
  enabled: true
  port: 17888
`

func init() {
	viper.SetDefault(CfgConsensusCommitteeSize, 5)
	viper.SetDefault(CfgConsensusMinCommitteeSize, 3)
	viper.SetDefault(CfgConsensusMinQuorumRatio, 0.67)
	viper.SetDefault(CfgConsensusMaxRounds, 3)
	viper.SetDefault(CfgConsensusLeaderTimeoutSecs, 10)
	viper.SetDefault(CfgConsensusCollectTimeoutSecs, 30)
	viper.SetDefault(CfgConsensusMessageQueueSize, 512)
	viper.SetDefault(CfgConsensusValidators, "")

	viper.SetDefault(CfgAppealWindowSecs, 30)
	viper.SetDefault(CfgAppealMaxDepth, 2)
	viper.SetDefault(CfgAppealExpansionSize, 2)
	viper.SetDefault(CfgAppealMinBond, 1)
	viper.SetDefault(CfgAppealSweepIntervalMs, 1000)

	viper.SetDefault(CfgSandboxMaxRetries, 3)
	viper.SetDefault(CfgSandboxRetryBackoffMs, 200)
	viper.SetDefault(CfgSandboxCapabilityTimeoutSecs, 15)

	viper.SetDefault(CfgCapabilityEndpoint, "http://127.0.0.1:17900/invoke")

	viper.SetDefault(CfgRPCEnabled, false)
	viper.SetDefault(CfgRPCAddress, "127.0.0.1")
	viper.SetDefault(CfgRPCPort, "17888")
	viper.SetDefault(CfgRPCMaxConnections, 200)
	viper.SetDefault(CfgRPCTimeoutSecs, 60)

	viper.SetDefault(CfgLogLevels, "*:info")
}

// WriteInitialConfig writes the initial config file to the file system.
func WriteInitialConfig(filePath string) error {
	return WriteFileAtomic(filePath, []byte(InitialConfig), 0600)
}
