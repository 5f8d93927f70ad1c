package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/freezer"
	"github.com/freezeyt/freezeyt/internal/progress"
	"github.com/freezeyt/freezeyt/internal/s3"
)

type freezeParams struct {
	outputDir   string
	exclude     []string
	concurrency int
	noProgress  bool
}

func init() {
	var params freezeParams

	freeze := &cobra.Command{
		Use:   "freeze",
		Short: "Write the extra files to the configured output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			root, err := loadConfig()
			if err != nil {
				return err
			}

			log := newLogger(cmd.ErrOrStderr())

			output, err := outputStorage(root, params.outputDir)
			if err != nil {
				return err
			}

			storage, err := s3.New(ctx, output)
			if err != nil {
				return err
			}

			var bar *progress.Bar
			if !params.noProgress {
				bar = progress.New(cmd.ErrOrStderr(), "freezing")
			}

			result, err := freezer.New(storage).
				WithExcluded(excludedFiles(root, params.exclude)).
				WithTarget(output.Name()).
				WithConcurrency(params.concurrency).
				WithLogger(log).
				WithProgress(bar).
				Freeze(ctx, newExpander(root, log).Expand(root.ExtraFiles))
			if err != nil {
				return expansionError(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d files written (%d bytes), %d skipped\n", result.Written, result.Bytes, result.Skipped)
			return nil
		},
	}

	addOutputFlag(freeze, &params.outputDir)
	addExcludeFlag(freeze, &params.exclude)
	freeze.Flags().IntVar(&params.concurrency, "concurrency", 4, "number of files written concurrently")
	freeze.Flags().BoolVar(&params.noProgress, "no-progress", false, "do not show a progress bar")

	RootCommand.AddCommand(freeze)
}

func addOutputFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVarP(p, "output-dir", "o", "", "write to this directory instead of the configured output")
}

func addExcludeFlag(cmd *cobra.Command, p *[]string) {
	cmd.Flags().StringArrayVar(p, "exclude", nil, "also skip files matching this pattern (repeatable)")
}

// excludedFiles returns the excluded_files of the configuration together
// with the patterns given on the command line.
func excludedFiles(root *config.Root, extra []string) config.StringSet {
	excluded := slices.Clone(root.ExcludedFiles)
	slices.Sort(excluded)
	for _, p := range extra {
		excluded = excluded.Add(p)
	}
	return excluded
}

// outputStorage returns the output of the configuration, or a directory
// given on the command line. A relative output directory of the
// configuration is resolved against the configuration's directory.
func outputStorage(root *config.Root, outputDir string) (config.ObjectStorage, error) {
	if outputDir != "" {
		return config.ObjectStorage{FileSystemStorage: &config.FileSystemStorage{Path: outputDir}}, nil
	}

	if root.Output == nil {
		return config.ObjectStorage{}, errors.New("no output configured: set output in the configuration or use --output-dir")
	}

	output := *root.Output
	if local := output.FileSystemStorage; local != nil {
		output.FileSystemStorage = &config.FileSystemStorage{Path: root.ResolvePath(local.Path)}
	}

	return output, nil
}

type diffParams struct {
	outputDir string
	exclude   []string
}

func init() {
	var params diffParams

	diff := &cobra.Command{
		Use:   "diff",
		Short: "Show how freezing would change the output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiff(cmd.Context(), cmd, params)
		},
	}

	addOutputFlag(diff, &params.outputDir)
	addExcludeFlag(diff, &params.exclude)

	RootCommand.AddCommand(diff)
}

func runDiff(ctx context.Context, cmd *cobra.Command, params diffParams) error {
	root, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cmd.ErrOrStderr())

	output, err := outputStorage(root, params.outputDir)
	if err != nil {
		return err
	}

	storage, err := s3.New(ctx, output)
	if err != nil {
		return err
	}

	diff, err := freezer.New(storage).
		WithExcluded(excludedFiles(root, params.exclude)).
		WithTarget(output.Name()).
		WithLogger(log).
		Diff(ctx, newExpander(root, log).Expand(root.ExtraFiles))
	if err != nil {
		return expansionError(err)
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
	return err
}
