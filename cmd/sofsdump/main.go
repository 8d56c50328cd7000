// Command sofsdump is a read-only inspection tool for SOFS13 volumes:
// ls, cat, stat, a consistency check, and a yaml-formatted superblock
// dump, all opened without taking the single-writer lock.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/joelpinheiro/sofs13/pkg/elog"
	"github.com/joelpinheiro/sofs13/pkg/sofs"
	"github.com/joelpinheiro/sofs13/pkg/vio"
)

var log elog.View

// plainTable renders vals as an unbordered, left-aligned table, the way
// the teacher's ls/du subcommands format inspection output. The first
// row is a header and is not rendered as data.
func plainTable(vals [][]string) {
	if len(vals) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}
	table.Render()
}

var (
	flagVerbose bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "sofsdump",
	Short: "Inspect a SOFS13 volume without mounting it",
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
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")

	lsCmd.Flags().BoolVarP(&flagLong, "long", "l", false, "show mode/links/uid/gid/size in an aligned table")
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(superblockCmd)
}

var flagLong bool

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List a directory's entries",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) > 1 {
			path = args[1]
		}
		fsys, err := sofs.OpenReadOnly(args[0])
		if err != nil {
			return err
		}
		defer fsys.Close()

		names, err := fsys.ReadDir(path, sofs.Root)
		if err != nil {
			return err
		}
		if !flagLong {
			for _, n := range names {
				log.Printf("%s", n)
			}
			return nil
		}

		table := [][]string{{"", "", "", "", "", "", ""}}
		for _, n := range names {
			childPath := strings.TrimSuffix(path, "/") + "/" + n
			st, err := fsys.Lookup(childPath, sofs.Root)
			if err != nil {
				return errors.Wrapf(err, "lookup %s", childPath)
			}
			table = append(table, []string{
				fmt.Sprintf("%#o", st.Mode),
				typeName(st.Type),
				fmt.Sprintf("%d", st.Refcount),
				fmt.Sprintf("%d", st.Owner),
				fmt.Sprintf("%d", st.Group),
				fmt.Sprintf("%d", st.Size),
				n,
			})
		}
		plainTable(table)
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys, err := sofs.OpenReadOnly(args[0])
		if err != nil {
			return errors.Wrapf(err, "open %s", args[0])
		}
		defer fsys.Close()

		st, err := fsys.Lookup(args[1], sofs.Root)
		if err != nil {
			return errors.Wrapf(err, "lookup %s", args[1])
		}
		buf := make([]byte, st.Size)
		n, err := fsys.ReadFile(args[1], 0, buf, sofs.Root)
		if err != nil {
			return errors.Wrapf(err, "read %s", args[1])
		}

		// os.Stdout has a Seek method, but it fails when the output is
		// piped somewhere non-seekable (a network socket, a pipe), so it
		// is passed as a plain io.Writer: every destination gets the
		// same stream-mode Seek-based write semantics.
		ws, err := vio.WriteSeeker(struct{ io.Writer }{os.Stdout})
		if err != nil {
			return err
		}
		_, err = ws.Write(buf[:n])
		return err
	},
}

var statCmd = &cobra.Command{
	Use:   "stat IMAGE PATH",
	Short: "Print one entry's metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys, err := sofs.OpenReadOnly(args[0])
		if err != nil {
			return err
		}
		defer fsys.Close()

		st, err := fsys.Lookup(args[1], sofs.Root)
		if err != nil {
			return err
		}
		plainTable([][]string{
			{"", ""},
			{"Inode:", fmt.Sprintf("%d", st.NInode)},
			{"Type:", typeName(st.Type)},
			{"Mode:", fmt.Sprintf("%#o", st.Mode)},
			{"Links:", fmt.Sprintf("%d", st.Refcount)},
			{"Uid:", fmt.Sprintf("%d", st.Owner)},
			{"Gid:", fmt.Sprintf("%d", st.Group)},
			{"Size:", fmt.Sprintf("%d", st.Size)},
			{"Access:", time.Unix(int64(st.Atime), 0).String()},
			{"Modify:", time.Unix(int64(st.Mtime), 0).String()},
		})
		return nil
	},
}

func typeName(t sofs.InodeType) string {
	switch t {
	case sofs.TypeDir:
		return "directory"
	case sofs.TypeSymlink:
		return "symbolic link"
	default:
		return "regular file"
	}
}

var checkCmd = &cobra.Command{
	Use:   "check IMAGE",
	Short: "Run the consistency checker and report every violation found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys, err := sofs.OpenReadOnly(args[0])
		if err != nil {
			return errors.Wrapf(err, "open %s", args[0])
		}
		defer fsys.Close()

		violations, err := sofs.Check(fsys)
		if err != nil {
			return errors.Wrap(err, "check")
		}
		if len(violations) == 0 {
			log.Printf("no inconsistencies found")
			return nil
		}
		for _, v := range violations {
			log.Warnf("%s", v.String())
		}
		return fmt.Errorf("%d inconsistencies found", len(violations))
	},
}

var flagYAML bool

var superblockCmd = &cobra.Command{
	Use:   "superblock IMAGE",
	Short: "Dump the superblock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys, err := sofs.OpenReadOnly(args[0])
		if err != nil {
			return err
		}
		defer fsys.Close()

		sb := fsys.Superblock()
		if flagYAML {
			out, err := yaml.Marshal(sb)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		}

		log.Printf("Name: %s", sb.Name)
		log.Printf("Ntotal: %d", sb.Ntotal)
		log.Printf("Itotal: %d  Ifree: %d  Ihead: %d  Itail: %d", sb.Itotal, sb.Ifree, sb.Ihead, sb.Itail)
		log.Printf("DzoneTotal: %d  DzoneFree: %d  FctablePos: %d", sb.DzoneTotal, sb.DzoneFree, sb.FctablePos)
		return nil
	},
}

func init() {
	superblockCmd.Flags().BoolVar(&flagYAML, "format-yaml", false, "dump the superblock as YAML instead of plain text")
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
