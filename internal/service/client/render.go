package client

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/oshokin/swupdate/internal/domain/update"
	"github.com/oshokin/swupdate/internal/events"
)

// printReport renders a check report as a table followed by the overall status.
func printReport(out io.Writer, report *update.CheckReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "TARGET\tNAME\tLOCAL\tREMOTE\tSTATE")

	for _, name := range slices.Sorted(maps.Keys(report.Targets)) {
		ts := report.Targets[name]

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			name,
			ts.DisplayName,
			ts.DisplayVersion,
			ts.Info.Information.Remote.Name,
			targetState(ts),
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\nstatus: %s\n", report.Status)

	return err
}

func targetState(ts update.TargetStatus) string {
	switch {
	case ts.Err != nil:
		return "error: " + ts.Err.Error()
	case ts.Info.UpdateAvailable && ts.Info.UpdatePossible:
		return "update available"
	case ts.Info.UpdateAvailable:
		return "update available (cannot apply)"
	default:
		return "current"
	}
}

// printPlan lists the targets of a started run in update order.
func printPlan(out io.Writer, plan *update.Plan) error {
	if len(plan.Order) == 0 {
		_, err := fmt.Fprintln(out, "nothing to update")

		return err
	}

	names := make([]string, 0, len(plan.Order))
	for _, target := range plan.Order {
		names = append(names, plan.Names[target])
	}

	_, err := fmt.Fprintf(out, "updating: %s\n", strings.Join(names, ", "))

	return err
}

// formatEvent renders one progress event as console text.
func formatEvent(e events.Event) string {
	target, _ := e.Data["target"].(string)

	switch e.Type {
	case events.Updating:
		return fmt.Sprintf("[%s] updating to %v", target, e.Data["version"])
	case events.LogLines:
		lines, _ := e.Data["lines"].([]any)

		var b strings.Builder

		for i, line := range lines {
			if i > 0 {
				b.WriteByte('\n')
			}

			fmt.Fprintf(&b, "[%s] %v", target, line)
		}

		return b.String()
	case events.UpdateFailed:
		return fmt.Sprintf("[%s] update failed: %v", target, e.Data["reason"])
	case events.Restarting:
		return fmt.Sprintf("restarting (%v)", e.Data["restart_type"])
	case events.RestartFailed:
		return fmt.Sprintf("restart failed (%v), restart manually", e.Data["restart_type"])
	case events.RestartManually:
		return fmt.Sprintf("restart needed (%v), restart manually", e.Data["restart_type"])
	case events.Success:
		return "update finished"
	case events.Error:
		return "update failed"
	default:
		return string(e.Type)
	}
}
