package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var existsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Check whether a path exists",
	Long:  "Print true or false depending on whether the path exists; exits non-zero when it does not.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExists,
}

func init() {
	rootCmd.AddCommand(existsCmd)
}

func runExists(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}

	ok, err := p.Exists(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, ok)
	if !ok {
		os.Exit(1)
	}
	return nil
}
