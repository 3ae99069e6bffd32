package util

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/agoralabs/agora/common"
)

var logLevels map[string]string

func init() {
	customFormatter := new(log.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	log.SetFormatter(customFormatter)
	customFormatter.FullTimestamp = true
}

// InitLog must be called after the config has been loaded.
func InitLog() {
	logLevels = parseLogLevelConfig(viper.GetString(common.CfgLogLevels))
}

// parseLogLevelConfig parses a config string in the form of
// "*:info,consensus:debug,rpc:error" into a module => level map. The "*"
// entry carries the default level and is filled in if absent.
func parseLogLevelConfig(config string) map[string]string {
	ret := make(map[string]string)
	for _, pair := range strings.Split(config, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ret[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if _, ok := ret["*"]; !ok {
		ret["*"] = "warn"
	}
	return ret
}

// GetLoggerForModule returns a logger for the given module, with the
// level configured through the log.levels config key.
func GetLoggerForModule(module string) *log.Entry {
	if logLevels == nil {
		InitLog()
	}

	levelStr, ok := logLevels[module]
	if !ok {
		levelStr = logLevels["*"]
	}
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		level = log.InfoLevel
	}

	logger := log.New()
	logger.SetFormatter(log.StandardLogger().Formatter)
	logger.SetLevel(level)
	return logger.WithFields(log.Fields{"prefix": module})
}
