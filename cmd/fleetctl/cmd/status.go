package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tankersim/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [tanker_id]",
	Short: "Get the current state of a tanker",
	Long:  `Retrieve the full current snapshot of one tanker: lifecycle status, driver, route, position, cargo, seal, and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tankerID := args[0]

		st, err := openStore(cmd.Context())
		if err != nil {
			cmd.Printf("Failed to connect: %v\n", err)
			return
		}
		defer st.Close()

		tanker, err := st.LoadSnapshot(cmd.Context(), tankerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				cmd.Printf("Tanker %s not found\n", tankerID)
				return
			}
			cmd.Printf("Failed to load tanker: %v\n", err)
			return
		}

		printTanker(cmd, tanker)
	},
}

func printTanker(cmd *cobra.Command, t *store.Tanker) {
	icon := statusIcon(t.Status)
	cmd.Printf("%s %sTanker %s%s\n", icon, colorBold, t.TankerID, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sStatus:%s       %s\n", colorDim, colorReset, colorizeStatus(t.Status))
	cmd.Printf("%sSeal:%s         %s\n", colorDim, colorReset, colorizeSeal(t.Seal))
	cmd.Printf("%sDriver:%s       %s\n", colorDim, colorReset, strOrDash(t.DriverName))
	cmd.Printf("%sSource:%s       %s\n", colorDim, colorReset, locationName(t.SourceDepot))
	cmd.Printf("%sDestination:%s  %s\n", colorDim, colorReset, locationName(t.Destination))

	if t.Lat != nil && t.Lon != nil {
		cmd.Printf("%sPosition:%s     %.6f, %.6f\n", colorDim, colorReset, *t.Lat, *t.Lon)
	} else {
		cmd.Printf("%sPosition:%s     -\n", colorDim, colorReset)
	}

	fill := 0.0
	if t.MaxCapacityLiters > 0 {
		fill = 100 * t.OilVolumeLiters / t.MaxCapacityLiters
	}
	cmd.Printf("%sCargo:%s        %.0f / %.0f L %s(%.0f%%)%s\n", colorDim, colorReset,
		t.OilVolumeLiters, t.MaxCapacityLiters, colorCyan, fill, colorReset)
	cmd.Printf("%sSpeed:%s        %.1f km/h\n", colorDim, colorReset, t.AvgSpeedKmh)
	cmd.Printf("%sTrip time:%s    %.2f h\n", colorDim, colorReset, t.TripDurationHours)

	cmd.Printf("%sSince:%s        %s\n", colorDim, colorReset, formatTimeWithRelative(t.StatusChangedAt))
	cmd.Printf("%sLast update:%s  %s\n", colorDim, colorReset, formatTimeWithRelative(t.LastUpdate))
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func statusIcon(status store.Status) string {
	switch status {
	case store.StatusAtSource:
		return colorCyan + "◯" + colorReset
	case store.StatusLoading:
		return colorBlue + "▼" + colorReset
	case store.StatusInTransit:
		return colorYellow + "➤" + colorReset
	case store.StatusReachedDestination:
		return colorGreen + "✓" + colorReset
	case store.StatusUnloading:
		return colorBlue + "▲" + colorReset
	case store.StatusDelayed:
		return colorRed + "⚠" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status store.Status) string {
	icon := statusIcon(status)
	switch status {
	case store.StatusAtSource:
		return icon + " " + colorCyan + string(status) + colorReset
	case store.StatusLoading, store.StatusUnloading:
		return icon + " " + colorBlue + string(status) + colorReset
	case store.StatusInTransit:
		return icon + " " + colorYellow + string(status) + colorReset
	case store.StatusReachedDestination:
		return icon + " " + colorGreen + string(status) + colorReset
	case store.StatusDelayed:
		return icon + " " + colorRed + string(status) + colorReset
	default:
		return string(status)
	}
}

func colorizeSeal(seal store.SealStatus) string {
	if seal == store.SealSealed {
		return colorGreen + string(seal) + colorReset
	}
	return colorYellow + string(seal) + colorReset
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	relative := relativeTime(t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
