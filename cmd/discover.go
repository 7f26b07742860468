package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gencam.dev/gencam/pkg/gvcp"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "broadcast a GVCP discovery command and list responding devices",
	Run: func(cmd *cobra.Command, args []string) {
		runDiscover()
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "discover-timeout", 2*time.Second, "time to wait for discovery acknowledgements")
}

func runDiscover() {
	devices, err := gvcp.Discover(discoverTimeout, ifaceName)
	if err != nil {
		exitWithError("discovery failed", err)
	}

	if jsonOutput {
		type deviceJSON struct {
			IP           string `json:"ip"`
			MAC          string `json:"mac"`
			Manufacturer string `json:"manufacturer"`
			Model        string `json:"model"`
		}
		out := make([]deviceJSON, 0, len(devices))
		for _, d := range devices {
			out = append(out, deviceJSON{IP: d.IP.String(), MAC: d.MACString(), Manufacturer: d.Manufacturer, Model: d.Model})
		}
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			exitWithError("marshal discovery result", err)
		}
		fmt.Println(string(enc))
		return
	}

	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "no devices responded")
		return
	}
	fmt.Printf("%-15s %-17s %-20s %s\n", "IP", "MAC", "MANUFACTURER", "MODEL")
	for _, d := range devices {
		fmt.Printf("%-15s %-17s %-20s %s\n", d.IP.String(), d.MACString(), d.Manufacturer, d.Model)
	}
}
