package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		channels   int
		instrument string
		tempo      float64
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "new <workspace>",
		Short: "Create a workspace with empty channels",
		Long: `Create a workspace file. Channels are named ch1, ch2, ... and start with the
configured instrument. The extension picks the encoding (.json or YAML).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config
			if cmd.Flags().Changed("channels") {
				cfg.Channels = channels
			}
			if cmd.Flags().Changed("instrument") {
				cfg.Instrument = instrument
			}
			if cmd.Flags().Changed("tempo") {
				cfg.Tempo = tempo
			}
			return runNew(rootOpts, args[0], force, cmd)
		},
	}
	cmd.Flags().IntVarP(&channels, "channels", "n", 0, "number of channels (default from config)")
	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "instrument for each channel (default from config)")
	cmd.Flags().Float64Var(&tempo, "tempo", 0, "starting tempo in bpm (default from config)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func runNew(opts *RootOptions, path string, force bool, cmd *cobra.Command) error {
	if !force && exists(path) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	f := opts.factory()
	desc, err := opts.instrument(f, opts.config.Instrument)
	if err != nil {
		return err
	}
	w, err := opts.newWorld(f)
	if err != nil {
		return err
	}
	defer w.Close()

	w.Score().SetBaseTempo(opts.config.Tempo)
	for range opts.config.Channels {
		c, err := w.Audio().CreateChannel()
		if err != nil {
			return err
		}
		if err := c.LoadInstrument(desc); err != nil {
			return fmt.Errorf("cannot load %s into %s: %w", desc, c.Name(), err)
		}
	}
	if err := w.SaveFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s with %d channel(s)\n", path, opts.config.Channels)
	return nil
}
