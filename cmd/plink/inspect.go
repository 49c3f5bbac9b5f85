package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbegin/plink-go/internal/document"
	"github.com/cbegin/plink-go/internal/report"
)

func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var withGraph bool
	cmd := &cobra.Command{
		Use:   "inspect <workspace>",
		Short: "Summarize a workspace",
		Long: `Print the channels, cues, cycles and script of a workspace. With --graph the
workspace is loaded into a live audio graph and its node listing is appended.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], withGraph, cmd)
		},
	}
	cmd.Flags().BoolVarP(&withGraph, "graph", "g", false, "include the audio graph")
	return cmd
}

func runInspect(opts *RootOptions, path string, withGraph bool, cmd *cobra.Command) error {
	d, err := document.Load(path)
	if err != nil {
		return err
	}
	s := report.Summarize(filepath.Base(path), d)

	if withGraph {
		w, err := opts.newWorld(nil)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Load(d); err != nil {
			return err
		}
		var b strings.Builder
		if err := w.Audio().Dump(&b); err != nil {
			return err
		}
		s.Graph = b.String()
	}

	r, err := report.New()
	if err != nil {
		return err
	}
	return r.Document(cmd.OutOrStdout(), s)
}
