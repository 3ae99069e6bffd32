package cmd

import (
	"os"
	"path"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agoralabs/agora/common"
)

// initCmd creates the config folder with a default config file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
			log.WithFields(log.Fields{"config": cfgPath}).Fatal("Config folder already exists")
		}
		if err := os.MkdirAll(cfgPath, 0700); err != nil {
			log.WithFields(log.Fields{"config": cfgPath, "error": err}).Fatal("Failed to create config folder")
		}
		if err := common.WriteInitialConfig(path.Join(cfgPath, "config.yaml")); err != nil {
			log.WithFields(log.Fields{"config": cfgPath, "error": err}).Fatal("Failed to write config file")
		}
		log.WithFields(log.Fields{"config": cfgPath}).Info("Config initialized")
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
}
