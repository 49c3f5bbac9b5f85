package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbegin/plink-go/internal/document"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "migrate <workspace>",
		Short: "Upgrade a workspace file to the current document version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			out := output
			if out == "" {
				out = in
			}
			d, err := document.Load(in)
			if err != nil {
				return err
			}
			if err := document.Save(out, d); err != nil {
				return err
			}
			rootOpts.logger.Debug("migrated", "from", in, "to", out)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (document version %s)\n", out, document.Current)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write here instead of in place")
	return cmd
}
