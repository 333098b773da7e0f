package control

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"iscpctl/internal/device"
	"iscpctl/internal/store"
)

const (
	defaultWidth = 80
	minModelCol  = 12
)

func terminalWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// modelWidth gives the model column whatever the fixed columns leave over.
func modelWidth(width, fixed int) int {
	if w := width - fixed; w > minModelCol {
		return w
	}
	return minModelCol
}

func printDevices(w io.Writer, devices []device.Device, selected, width int) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found. Run 'iscpctl discover' on the receiver's network.")
		return
	}

	// # + address + area + mac + separators
	model := modelWidth(width, 4+22+15+13+8)
	if model > 24 {
		model = 24
	}

	fmt.Fprintf(w, "\n  Available devices (%d)\n\n", len(devices))
	fmt.Fprintf(w, "  %-4s %-*s %-22s %-15s %-13s\n", "#", model, "Model", "Address", "Area", "MAC")
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		strings.Repeat("─", 4),
		strings.Repeat("─", model),
		strings.Repeat("─", 22),
		strings.Repeat("─", 15),
		strings.Repeat("─", 13))

	for i, d := range devices {
		marker := fmt.Sprintf("%d", i)
		if i == selected {
			marker += "*"
		}
		fmt.Fprintf(w, "  %-4s %-*s %-22s %-15s %-13s\n",
			marker,
			model, truncate(d.Model, model),
			d.Address,
			device.AreaName(d.Area),
			d.MAC,
		)
	}
	if selected < 0 {
		fmt.Fprint(w, "\n  Selected device: unknown\n\n")
		return
	}
	fmt.Fprintf(w, "\n  Selected device: %d\n\n", selected)
}

func printHistory(w io.Writer, records []store.DeviceRecord, width int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No devices recorded yet.")
		return
	}

	model := modelWidth(width, 22+13+10+19+6+8)
	if model > 24 {
		model = 24
	}

	fmt.Fprintf(w, "\n  Known devices (%d)\n\n", len(records))
	fmt.Fprintf(w, "  %-*s %-22s %-13s %-10s %-19s %-6s\n", model, "Model", "Last Address", "MAC", "Interface", "Last Seen", "Seen")
	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		strings.Repeat("─", model),
		strings.Repeat("─", 22),
		strings.Repeat("─", 13),
		strings.Repeat("─", 10),
		strings.Repeat("─", 19),
		strings.Repeat("─", 6))

	for _, r := range records {
		iface := r.Device.Interface
		if iface == "" {
			iface = "-"
		}
		fmt.Fprintf(w, "  %-*s %-22s %-13s %-10s %-19s %-6d\n",
			model, truncate(r.Device.Model, model),
			r.Device.Address,
			r.Device.MAC,
			truncate(iface, 10),
			r.LastSeen.Local().Format("2006-01-02 15:04:05"),
			r.SeenCount,
		)
	}
	fmt.Fprintln(w)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
