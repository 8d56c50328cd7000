// Command mkfs-sofs13 formats a new SOFS13 backing file.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelpinheiro/sofs13/pkg/elog"
	"github.com/joelpinheiro/sofs13/pkg/sofs"
)

var log elog.View

var (
	flagVerbose  bool
	flagDebug    bool
	flagSize     string
	flagInodes   uint32
	flagName     string
	flagZeroFill bool
)

var rootCmd = &cobra.Command{
	Use:   "mkfs-sofs13 PATH",
	Short: "Format a new SOFS13 volume",
	Long:  "mkfs-sofs13 creates a backing file of the requested size and lays out an empty SOFS13 volume inside it.",
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
		return nil
	},
	RunE: runFormat,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.Flags().StringVarP(&flagSize, "size", "s", "16M", "backing file size (accepts K/M/G suffixes)")
	rootCmd.Flags().Uint32VarP(&flagInodes, "inodes", "i", 0, "inode table size (0 selects an automatic size)")
	rootCmd.Flags().StringVarP(&flagName, "volume-name", "n", "", `volume name, up to 23 bytes (default "SOFS13")`)
	rootCmd.Flags().BoolVarP(&flagZeroFill, "zero-fill", "z", false, "zero-fill the data zone instead of leaving it unspecified")
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

func runFormat(cmd *cobra.Command, args []string) error {
	path := args[0]

	size, err := parseSize(flagSize)
	if err != nil {
		return err
	}
	size -= size % sofs.BlockSize

	log.Infof("formatting %s (%d bytes)", path, size)

	var bar elog.Progress
	opts := sofs.FormatOptions{
		VolumeName: flagName,
		Itotal:     flagInodes,
		ZeroFill:   flagZeroFill,
	}
	if flagZeroFill {
		dzoneBytes, err := sofs.DataZoneBytes(size, flagInodes)
		if err != nil {
			return errors.Wrapf(err, "format %s", path)
		}
		bar = log.NewProgress("zero-fill", "KiB", dzoneBytes)
		opts.ZeroFillProgress = bar
	}

	err = sofs.Format(path, size, opts)
	if bar != nil {
		bar.Finish(err == nil)
	}
	if err != nil {
		return errors.Wrapf(err, "format %s", path)
	}

	log.Printf("formatted %s", path)
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
