package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/freezeyt/freezeyt/internal/extrafiles"
)

type outputFormat enumflag.Flag

const (
	formatTable outputFormat = iota
	formatJSON
	formatYAML
)

var outputFormatIds = map[outputFormat][]string{
	formatTable: {"table"},
	formatJSON:  {"json"},
	formatYAML:  {"yaml"},
}

type extraFilesParams struct {
	format outputFormat
}

func init() {
	var params extraFilesParams

	extraFiles := &cobra.Command{
		Use:   "extra-files",
		Short: "List the files the extra_files section expands to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := loadConfig()
			if err != nil {
				return err
			}

			log := newLogger(cmd.ErrOrStderr())
			ds, err := extrafiles.Collect(newExpander(root, log).Expand(root.ExtraFiles))
			if err != nil {
				return expansionError(err)
			}

			return printDirectives(cmd.OutOrStdout(), ds, params.format)
		},
	}

	extraFiles.Flags().Var(enumflag.New(&params.format, "format", outputFormatIds, enumflag.EnumCaseInsensitive), "format", "output format (table, json, yaml)")

	RootCommand.AddCommand(extraFiles)
}

func printDirectives(w io.Writer, ds []extrafiles.Directive, format outputFormat) error {
	switch format {
	case formatJSON, formatYAML:
		if ds == nil {
			ds = []extrafiles.Directive{}
		}
		bs, err := json.MarshalIndent(ds, "", "  ")
		if err != nil {
			return err
		}
		if format == formatYAML {
			if bs, err = yaml.JSONToYAML(bs); err != nil {
				return err
			}
		} else {
			bs = append(bs, '\n')
		}
		_, err = w.Write(bs)
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("URL path", "Kind", "Source")
	for _, d := range ds {
		source := d.Path
		if d.Kind == extrafiles.KindContent {
			source = fmt.Sprintf("%d bytes", len(d.Content))
		}
		if err := table.Append([]string{d.URLPath, d.Kind.String(), source}); err != nil {
			return err
		}
	}
	return table.Render()
}
