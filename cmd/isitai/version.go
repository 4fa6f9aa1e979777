package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/isitai"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "isitai %s\n", isitai.GetVersion())
			return err
		},
	}
}
