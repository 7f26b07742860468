package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <node>",
	Short: "execute a command node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runExec(args[0])
	},
}

func runExec(name string) {
	ctx := context.Background()
	dev, err := openDevice(ctx)
	if err != nil {
		exitWithError("open device", err)
	}
	defer dev.Close()

	if err := dev.Nodes().Execute(ctx, name); err != nil {
		failf(err)
	}
}
