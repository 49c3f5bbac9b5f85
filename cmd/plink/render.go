package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbegin/plink-go"
	"github.com/cbegin/plink-go/internal/ticktime"
)

type renderOptions struct {
	output  string
	from    float64
	beats   float64
	runout  float64
	command string
	seconds float64
}

func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render <workspace>",
		Short: "Render a workspace to a WAV file",
		Long: `Render part of the score, or the sound of a single command, to a 16-bit
stereo WAV file.

  plink render song.yaml -o song.wav --from 8 --beats 32
  plink render song.yaml -o hit.wav --command 'channel("ch1").play(60, 100, 24)' --seconds 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("runout") {
				opts.runout = rootOpts.config.RunoutSeconds
			}
			return runRender(rootOpts, opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "WAV file to write")
	cmd.Flags().Float64Var(&opts.from, "from", 0, "start position in beats")
	cmd.Flags().Float64Var(&opts.beats, "beats", 0, "length to render in beats")
	cmd.Flags().Float64Var(&opts.runout, "runout", 0, "longest decay after the score stretch in seconds (default from config)")
	cmd.Flags().StringVarP(&opts.command, "command", "c", "", "render this command instead of the score")
	cmd.Flags().Float64Var(&opts.seconds, "seconds", 4, "length of a command render")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func beatsToTicks(beats float64) ticktime.Time {
	return ticktime.Time(math.Round(beats * ticktime.TicksPerBeat))
}

func runRender(rootOpts *RootOptions, opts *renderOptions, path string, cmd *cobra.Command) error {
	if opts.command == "" && opts.beats <= 0 {
		return errors.New("--beats is required when rendering the score")
	}
	w, err := rootOpts.openWorld(path)
	if err != nil {
		return err
	}
	defer w.Close()

	f, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	if opts.command != "" {
		err = w.RenderCommand(f, opts.command, opts.seconds)
	} else {
		err = w.RenderScore(f, plink.RenderRequest{
			From:     beatsToTicks(opts.from),
			Duration: beatsToTicks(opts.beats),
			Runout:   time.Duration(opts.runout * float64(time.Second)),
		})
	}
	if err != nil {
		return fmt.Errorf("cannot render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s in %s\n", opts.output, time.Since(start).Round(time.Millisecond))
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
