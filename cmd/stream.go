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
	"gencam.dev/gencam/pkg/netutil"
)

var (
	streamIndex int
	streamCount int
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "negotiate a GVSP stream channel and print completed frame headers",
	Run: func(cmd *cobra.Command, args []string) {
		runStream()
	},
}

func init() {
	streamCmd.Flags().IntVar(&streamIndex, "channel", 0, "stream channel index to negotiate")
	streamCmd.Flags().IntVar(&streamCount, "count", 0, "number of frames to print before exiting (0 = unbounded)")
}

func runStream() {
	if ifaceName == "" {
		exitWithError("--interface is required for streaming", nil)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dev, err := openDevice(ctx)
	if err != nil {
		exitWithError("open device", err)
	}
	defer dev.Close()

	iface, err := netutil.FromName(ifaceName)
	if err != nil {
		exitWithError("resolve interface", err)
	}

	gvspCfg := deviceConfigFromFlags().GVSP
	stream, err := gencam.OpenStream(ctx, dev, streamIndex, iface, gvspCfg)
	if err != nil {
		exitWithError("open stream", err)
	}
	defer stream.Close()

	for n := 0; streamCount == 0 || n < streamCount; n++ {
		frame, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			exitWithError("read frame", err)
		}
		printFrame(frame)
	}
}

func printFrame(f *gencam.Frame) {
	if jsonOutput {
		enc, _ := json.Marshal(struct {
			BlockID         uint16 `json:"block_id"`
			Width           uint32 `json:"width"`
			Height          uint32 `json:"height"`
			PixelFormat     uint32 `json:"pixel_format"`
			PayloadBytes    int    `json:"payload_bytes"`
			DeviceTimestamp uint64 `json:"device_timestamp"`
		}{f.BlockID, f.Width, f.Height, f.PixelFormatCode, len(f.Payload), f.DeviceTimestamp})
		fmt.Println(string(enc))
		return
	}
	fmt.Printf("block=%d %dx%d format=0x%08x bytes=%d device_ts=%d\n",
		f.BlockID, f.Width, f.Height, f.PixelFormatCode, len(f.Payload), f.DeviceTimestamp)
}
