package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "eval <workspace> <expression>...",
		Short: "Evaluate expressions against a workspace",
		Long: `Load a workspace, run its script, then evaluate each expression in order and
print the results. With --save the console history and any changes made by
the expressions are written back.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := rootOpts.openWorld(args[0])
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, expr := range args[1:] {
				res, ok, err := w.EvalCommand(expr)
				switch {
				case err != nil:
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "! %v\n", err)
				case ok:
					fmt.Fprintln(out, res)
				}
			}
			if save {
				if err := w.SaveFile(args[0]); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d expression(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the workspace back after evaluating")
	return cmd
}
