package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	putRecursive bool
	putMetadata  map[string]string
)

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Upload to durable storage",
	Long:  "Upload a local file, or a whole directory with --recursive, to a remote path.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().BoolVarP(&putRecursive, "recursive", "r", false, "copy a directory tree")
	putCmd.Flags().StringToStringVarP(&putMetadata, "metadata", "m", nil, "object metadata as key=value pairs")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	p, err := newProvider()
	if err != nil {
		return err
	}

	dst, err := p.PutData(context.Background(), args[0], args[1], putRecursive, putMetadata)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, dst)
	return nil
}
