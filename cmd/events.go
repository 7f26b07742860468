package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gencam.dev/gencam"
)

var (
	eventsBind   string
	eventsEnable []string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "bind the event channel and print decoded event notifications",
	Run: func(cmd *cobra.Command, args []string) {
		runEvents()
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsBind, "bind", ":0", "local address to bind the event socket on")
	eventsCmd.Flags().StringSliceVar(&eventsEnable, "enable", nil, "event ids to enable (decimal or 0x-prefixed hex)")
}

func runEvents() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dev, err := openDevice(ctx)
	if err != nil {
		exitWithError("open device", err)
	}
	defer dev.Close()

	es, err := gencam.OpenEventStream(ctx, dev, eventsBind)
	if err != nil {
		exitWithError("open event stream", err)
	}
	defer es.Close()

	for _, raw := range eventsEnable {
		id, err := gencam.ParseEventID(raw)
		if err != nil {
			exitWithError("parse event id", err)
		}
		if err := es.EnableEvent(ctx, id); err != nil {
			exitWithError(fmt.Sprintf("enable event 0x%04x", id), err)
		}
	}

	for ev := range es.Events() {
		if jsonOutput {
			enc, _ := json.Marshal(struct {
				EventID        uint16 `json:"event_id"`
				NotificationID uint16 `json:"notification_id"`
				DeviceTime     uint64 `json:"device_time"`
				StreamChannel  uint16 `json:"stream_channel"`
				BlockID        uint16 `json:"block_id"`
			}{ev.EventID, ev.NotificationID, ev.DeviceTime, ev.StreamChannel, ev.BlockID})
			fmt.Println(string(enc))
			continue
		}
		fmt.Printf("event=0x%04x notification=%d device_time=%d stream_channel=%d block=%d\n",
			ev.EventID, ev.NotificationID, ev.DeviceTime, ev.StreamChannel, ev.BlockID)
	}
}
