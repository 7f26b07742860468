package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gencam.dev/gencam/pkg/genxml"
)

var getCmd = &cobra.Command{
	Use:   "get <node>",
	Short: "read a feature node's value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runGet(args[0])
	},
}

func runGet(name string) {
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

	var value interface{}
	switch kind {
	case genxml.KindInteger:
		value, err = dev.Nodes().GetInteger(ctx, name)
	case genxml.KindFloat:
		value, err = dev.Nodes().GetFloat(ctx, name)
	case genxml.KindBoolean:
		value, err = dev.Nodes().GetBool(ctx, name)
	case genxml.KindEnum:
		value, err = dev.Nodes().GetEnum(ctx, name)
	default:
		exitWithError(fmt.Sprintf("node %q has no readable value", name), nil)
	}
	if err != nil {
		failf(err)
	}

	if jsonOutput {
		enc, _ := json.Marshal(map[string]interface{}{"node": name, "value": value})
		fmt.Println(string(enc))
		return
	}
	switch v := value.(type) {
	case int64:
		fmt.Println(strconv.FormatInt(v, 10))
	default:
		fmt.Println(v)
	}
}
