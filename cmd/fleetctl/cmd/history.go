package cmd

import (
	"fmt"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [tanker_id]",
	Short: "Show recent history records for a tanker",
	Long:  `Show the most recent history records for one tanker, newest first. Each record is an immutable copy of the tanker's state taken when the simulator committed an update.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tankerID := args[0]

		st, err := openStore(cmd.Context())
		if err != nil {
			cmd.Printf("Failed to connect: %v\n", err)
			return
		}
		defer st.Close()

		records, err := st.ListHistory(cmd.Context(), tankerID, historyLimit)
		if err != nil {
			cmd.Printf("Failed to load history: %v\n", err)
			return
		}
		if len(records) == 0 {
			cmd.Printf("No history for tanker %s\n", tankerID)
			return
		}

		table := uitable.New()
		table.MaxColWidth = 40
		table.AddRow("RECORDED", "STATUS", "VOLUME", "SEAL", "SPEED", "TRIP")
		for _, r := range records {
			table.AddRow(
				r.RecordedAt.Format("2006-01-02 15:04:05"),
				colorizeStatus(r.Status),
				fmt.Sprintf("%.0f L", r.OilVolumeLiters),
				string(r.Seal),
				fmt.Sprintf("%.1f km/h", r.AvgSpeedKmh),
				fmt.Sprintf("%.2f h", r.TripDurationHours),
			)
		}
		cmd.Println(table)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show")
	rootCmd.AddCommand(historyCmd)
}
