// Package cmd implements the freezeyt command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/extrafiles"
	"github.com/freezeyt/freezeyt/internal/logging"
)

const defaultConfigFile = "freezeyt.yaml"

type globalParams struct {
	configFiles        []string
	logLevel           logging.Level
	mergeConflictError bool
}

var globals = globalParams{logLevel: logging.Info}

var RootCommand = &cobra.Command{
	Use:          "freezeyt",
	Short:        "Freeze the extra files of a static site",
	SilenceUsage: true,
}

func init() {
	flags := RootCommand.PersistentFlags()
	flags.StringSliceVarP(&globals.configFiles, "config", "c", []string{defaultConfigFile}, "configuration file(s) or directories, merged in order")
	flags.Var(enumflag.New(&globals.logLevel, "level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "log level (debug, info, warn, error)")
	flags.BoolVar(&globals.mergeConflictError, "merge-conflict-error", false, "fail when merged configuration files set the same value")
}

func newLogger(w io.Writer) *logging.Logger {
	return logging.New(logging.Config{Level: globals.logLevel, Output: w})
}

// loadConfig parses and merges the configuration files given on the
// command line.
func loadConfig() (*config.Root, error) {
	if len(globals.configFiles) == 0 {
		return nil, errors.New("no configuration file given")
	}

	root, err := config.ParseFiles(globals.configFiles, globals.mergeConflictError)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return root, nil
}

// newExpander returns an expander resolving relative paths against the
// configuration's directory.
func newExpander(root *config.Root, log *logging.Logger) *extrafiles.Expander {
	return extrafiles.New().WithBaseDir(root.Directory).WithLogger(log)
}

// expansionError marks errors that come from the extra_files section
// itself, as opposed to the files it refers to.
func expansionError(err error) error {
	if extrafiles.IsConfigError(err) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return err
}

// defaultConfigMissing reports whether the command runs without an explicit
// configuration and the default file does not exist.
func defaultConfigMissing() bool {
	if len(globals.configFiles) != 1 || globals.configFiles[0] != defaultConfigFile {
		return false
	}
	_, err := os.Stat(defaultConfigFile)
	return errors.Is(err, os.ErrNotExist)
}
