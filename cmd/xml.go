package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gencam.dev/gencam/pkg/genxml"
	"gencam.dev/gencam/pkg/gvcp"
)

var xmlCmd = &cobra.Command{
	Use:   "xml",
	Short: "fetch and print a device's XML register description",
	Run: func(cmd *cobra.Command, args []string) {
		runXML()
	},
}

func runXML() {
	if deviceAddress == "" {
		exitWithError("--address is required", nil)
	}
	dev := deviceConfigFromFlags()
	ctx := context.Background()

	control, err := gvcp.Open(ctx, dev.Address,
		gvcp.WithTimeouts(dev.RequestTimeout, dev.MaxAttempts, dev.BackoffBase, dev.BackoffCap, dev.JitterMax))
	if err != nil {
		exitWithError("open control channel", err)
	}
	defer control.Close()

	doc, err := genxml.FetchDocument(ctx, control)
	if err != nil {
		exitWithError("fetch XML register description", err)
	}
	fmt.Print(string(doc))
}
