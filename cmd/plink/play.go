package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cbegin/plink-go"
	"github.com/cbegin/plink-go/internal/tui"
)

type playOptions struct {
	tui   bool
	start bool
	save  bool
}

func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play [workspace]",
		Short: "Play a workspace live",
		Long: `Open the audio device and play a workspace, reading commands from standard
input (or the terminal console with --tui). Without a workspace an empty one is
used. Enter :q or press ctrl+c to leave.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runPlay(rootOpts, opts, path, cmd)
		},
	}
	cmd.Flags().BoolVarP(&opts.tui, "tui", "t", false, "use the terminal console")
	cmd.Flags().BoolVarP(&opts.start, "start", "s", false, "start the transport right away")
	cmd.Flags().BoolVar(&opts.save, "save", false, "write the workspace back on exit")
	return cmd
}

func runPlay(rootOpts *RootOptions, opts *playOptions, path string, cmd *cobra.Command) error {
	var (
		w   *plink.World
		err error
	)
	if path != "" {
		w, err = rootOpts.openWorld(path)
	} else {
		w, err = rootOpts.newWorld(nil)
	}
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Open(); err != nil {
		return err
	}
	if opts.start {
		w.Start()
	}

	if opts.tui {
		title := "plink"
		if path != "" {
			title = filepath.Base(path)
		}
		if _, err := tea.NewProgram(tui.NewModel(w, title), tea.WithAltScreen()).Run(); err != nil {
			return err
		}
	} else {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		repl(ctx, w, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	if opts.save && path != "" {
		return w.SaveFile(path)
	}
	return nil
}

// repl evaluates one command per input line until EOF, ":q" or ctx ends.
func repl(ctx context.Context, w *plink.World, in io.Reader, out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case ":q", ":quit":
				return
			}
			res, ok, err := w.EvalCommand(line)
			switch {
			case err != nil:
				fmt.Fprintf(out, "! %v\n", err)
			case ok:
				fmt.Fprintln(out, res)
			}
		}
	}
}
