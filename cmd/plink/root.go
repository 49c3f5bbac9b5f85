package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/cbegin/plink-go"
	"github.com/cbegin/plink-go/internal/config"
	"github.com/cbegin/plink-go/internal/graph"
	"github.com/cbegin/plink-go/internal/units"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	LogFormat    string // "text" | "json"
	ConfigPath   string
	SampleRate   int
	BufferFrames int

	config *config.Config
	logger *slog.Logger
}

var validLogFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "plink",
		Short: "plink - a live-coding music workstation",
		Long: `plink plays workspaces: channels of instruments and effects, a score of
cues and cycles, and a script that reacts to the clock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/plink/config.yaml)")
	cmd.PersistentFlags().IntVar(&opts.SampleRate, "sample-rate", 0, "output sample rate")
	cmd.PersistentFlags().IntVar(&opts.BufferFrames, "buffer-frames", 0, "frames per audio buffer")

	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewRenderCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewNewCommand(opts))
	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(validLogFormats, o.LogFormat) {
		return fmt.Errorf("invalid log format %q: must be one of %v", o.LogFormat, validLogFormats)
	}

	var err error
	if o.ConfigPath != "" {
		o.config, err = config.LoadFile(o.ConfigPath)
	} else {
		o.config, err = config.Load()
	}
	if err != nil {
		return err
	}
	if o.SampleRate > 0 {
		o.config.SampleRate = o.SampleRate
	}
	if o.BufferFrames > 0 {
		o.config.BufferFrames = o.BufferFrames
	}

	level := o.config.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.logger = newLogger(cmd.ErrOrStderr(), o.LogFormat, level)
	slog.SetDefault(o.logger)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func (o *RootOptions) factory() *units.Factory {
	return units.NewFactory(units.WithMaxFrames(o.config.BufferFrames))
}

// newWorld builds a World from the effective configuration.
func (o *RootOptions) newWorld(f *units.Factory) (*plink.World, error) {
	if f == nil {
		f = o.factory()
	}
	return plink.New(
		plink.WithSampleRate(o.config.SampleRate),
		plink.WithBufferFrames(o.config.BufferFrames),
		plink.WithTempo(o.config.Tempo),
		plink.WithLogger(o.logger),
		plink.WithFactory(f),
		plink.WithSilenceThreshold(float32(o.config.RunoutThreshold)),
	)
}

// openWorld builds a World and loads the workspace at path.
func (o *RootOptions) openWorld(path string) (*plink.World, error) {
	w, err := o.newWorld(nil)
	if err != nil {
		return nil, err
	}
	if err := w.LoadFile(path); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (o *RootOptions) instrument(f *units.Factory, name string) (graph.Description, error) {
	desc, ok := f.Lookup(graph.Instrument, name)
	if !ok {
		return graph.Description{}, fmt.Errorf("unknown instrument %q", name)
	}
	return desc, nil
}
