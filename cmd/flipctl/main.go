// Command flipctl talks to a cart-flipper authority from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flipctl",
		Short:         "Request and inspect object corrections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCorrectCmd(), newEncodeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flipctl:", err)
		os.Exit(1)
	}
}
