// Command mount-sofs13 binds a SOFS13 backing file to the in-process
// mount adapter and holds it open until interrupted. No kernel-mount
// binding library is in scope here; the adapter is the boundary a real
// FUSE (or other) binding would be wired against, and its package tests
// exercise it end-to-end.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joelpinheiro/sofs13/internal/mountfs"
	"github.com/joelpinheiro/sofs13/pkg/elog"
	"github.com/joelpinheiro/sofs13/pkg/sofs"
)

const configFileName = "sofs13.yaml"

var log elog.View

var (
	flagVerbose  bool
	flagDebug    bool
	flagConfig   string
	flagReadOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "mount-sofs13 IMAGE",
	Short: "Bind a SOFS13 volume to the in-process mount adapter",
	Args:  cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{}
		logrus.SetFormatter(logger)
		logrus.SetLevel(logrus.TraceLevel)
		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}
		log = logger
		initConfig(flagConfig)
		return nil
	},
	RunE: runMount,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (default: ~/"+configFileName+")")
	rootCmd.Flags().BoolVarP(&flagReadOnly, "read-only", "r", false, "mount the volume read-only")
}

// initConfig reads the read-only setting from a config file (--config, or
// ~/sofs13.yaml), defaulting it to false if no config file is found.
func initConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			goto loadDefaults
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("yaml")
	}

loadDefaults:
	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	} else {
		log.Debugf("%s", err.Error())
		log.Debugf("using default mount configuration")
		viper.SetDefault("read-only", false)
	}

	if !flagReadOnly && viper.GetBool("read-only") {
		flagReadOnly = true
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	path := args[0]

	var (
		fsys *sofs.FileSystem
		err  error
	)
	if flagReadOnly {
		fsys, err = sofs.OpenReadOnly(path)
	} else {
		fsys, err = sofs.Open(path)
	}
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	adapter := mountfs.New(fsys)
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Errorf("close: %s", err.Error())
		}
	}()

	if violations, err := adapter.Check(); err != nil {
		log.Errorf("consistency check: %s", err.Error())
	} else if len(violations) > 0 {
		log.Warnf("mounting a volume with %d existing inconsistencies", len(violations))
	}

	mode := "read-write"
	if flagReadOnly {
		mode = "read-only"
	}
	log.Printf("mounted %s (%s); waiting for interrupt", path, mode)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("unmounting %s", path)
	return nil
}

func main() {
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		if flagDebug {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}
