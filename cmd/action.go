package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"gencam.dev/gencam/pkg/gvcp"
)

var (
	actionDeviceKey     uint32
	actionGroupKey      uint32
	actionGroupMask     uint32
	actionScheduledTime uint64
	actionChannel       uint16
)

var actionCmd = &cobra.Command{
	Use:   "action <broadcast-address>",
	Short: "broadcast an action command and collect acknowledgements",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(args[0])
	},
}

func init() {
	actionCmd.Flags().Uint32Var(&actionDeviceKey, "device-key", 0, "device key devices must match to act")
	actionCmd.Flags().Uint32Var(&actionGroupKey, "group-key", 0, "group key devices must match to act")
	actionCmd.Flags().Uint32Var(&actionGroupMask, "group-mask", 0xFFFFFFFF, "group mask devices must match to act")
	actionCmd.Flags().Uint64Var(&actionScheduledTime, "scheduled-time", 0, "device tick count to act at (0 = immediately)")
	actionCmd.Flags().Uint16Var(&actionChannel, "channel", 0, "stream channel the action targets")
}

func runAction(broadcastAddr string) {
	acks, err := gvcp.SendAction(broadcastAddr, gvcp.ActionCommand{
		DeviceKey:     actionDeviceKey,
		GroupKey:      actionGroupKey,
		GroupMask:     actionGroupMask,
		ScheduledTime: actionScheduledTime,
		Channel:       actionChannel,
	})
	if err != nil {
		exitWithError("broadcast action command", err)
	}

	if jsonOutput {
		type ackJSON struct {
			From   string `json:"from"`
			Status string `json:"status"`
		}
		out := make([]ackJSON, 0, len(acks))
		for _, a := range acks {
			out = append(out, ackJSON{From: a.From.String(), Status: a.Status.String()})
		}
		enc, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(enc))
		return
	}
	fmt.Printf("%d acknowledgement(s)\n", len(acks))
	for _, a := range acks {
		fmt.Printf("%-21s %s\n", a.From.String(), a.Status.String())
	}
}
