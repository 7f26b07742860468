package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"gencam.dev/gencam/pkg/genxml"
)

var setCmd = &cobra.Command{
	Use:   "set <node> <value>",
	Short: "write a feature node's value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSet(args[0], args[1])
	},
}

func runSet(name, rawValue string) {
	ctx := context.Background()
	dev, err := openDevice(ctx)
	if err != nil {
		exitWithError("open device", err)
	}
	defer dev.Close()

	kind, err := dev.Nodes().Kind(name)
	if err != nil {
		failf(err)
	}

	switch kind {
	case genxml.KindInteger:
		v, perr := strconv.ParseInt(rawValue, 0, 64)
		if perr != nil {
			exitWithError("value is not an integer", perr)
		}
		err = dev.Nodes().SetInteger(ctx, name, v)
	case genxml.KindFloat:
		v, perr := strconv.ParseFloat(rawValue, 64)
		if perr != nil {
			exitWithError("value is not a float", perr)
		}
		err = dev.Nodes().SetFloat(ctx, name, v)
	case genxml.KindBoolean:
		v, perr := strconv.ParseBool(rawValue)
		if perr != nil {
			exitWithError("value is not a boolean", perr)
		}
		err = dev.Nodes().SetBool(ctx, name, v)
	case genxml.KindEnum:
		err = dev.Nodes().SetEnum(ctx, name, rawValue)
	default:
		exitWithError("node has no writable value", nil)
	}
	if err != nil {
		failf(err)
	}
}
