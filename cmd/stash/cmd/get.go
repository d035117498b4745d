package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getRecursive bool

var getCmd = &cobra.Command{
	Use:   "get <remote> <local>",
	Short: "Download from durable storage",
	Long:  "Download a remote object, or a whole tree with --recursive, to a local path.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().BoolVarP(&getRecursive, "recursive", "r", false, "copy a directory tree")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}

	dst, err := p.GetData(context.Background(), args[0], args[1], getRecursive)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, dst)
	return nil
}
