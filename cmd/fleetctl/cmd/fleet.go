package cmd

import (
	"fmt"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"tankersim/internal/store"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "List every tanker in the fleet",
	Long:  `List the current snapshot of every tanker: status, driver, position, cargo volume, and how long the tanker has been in its current status.`,
	Run: func(cmd *cobra.Command, args []string) {
		st, err := openStore(cmd.Context())
		if err != nil {
			cmd.Printf("Failed to connect: %v\n", err)
			return
		}
		defer st.Close()

		tankers, err := st.ListSnapshots(cmd.Context())
		if err != nil {
			cmd.Printf("Failed to list fleet: %v\n", err)
			return
		}
		if len(tankers) == 0 {
			cmd.Println("No tankers found")
			return
		}

		now := time.Now()
		table := uitable.New()
		table.MaxColWidth = 40
		table.AddRow("TANKER", "STATUS", "DRIVER", "DESTINATION", "VOLUME", "SEAL", "IN STATUS")
		for _, t := range tankers {
			table.AddRow(
				t.TankerID,
				colorizeStatus(t.Status),
				strOrDash(t.DriverName),
				locationName(t.Destination),
				fmt.Sprintf("%.0f/%.0f L", t.OilVolumeLiters, t.MaxCapacityLiters),
				string(t.Seal),
				formatDuration(t.TimeInStatus(now)),
			)
		}
		cmd.Println(table)
		cmd.Printf("\n%d tankers\n", len(tankers))
	},
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func locationName(loc *store.Location) string {
	if loc == nil {
		return "-"
	}
	return loc.Name
}

func init() {
	rootCmd.AddCommand(fleetCmd)
}
