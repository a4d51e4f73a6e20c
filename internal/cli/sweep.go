package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// SweepCmd returns the sweep command
func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Refresh open SLAs and expire due pendings once",
		Long: `Run one lifecycle sweep against the configured store: every open protocol
has its SLA status recomputed and its overdue pendings expired. This is the
same pass lifecycled runs on its sweep interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lc, closeFn, err := openLifecycle(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := lc.Protocols.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "Protocols swept:  %d\n", report.Protocols)
			fmt.Fprintf(out, "SLAs refreshed:   %d\n", report.SLAsRefreshed)
			fmt.Fprintf(out, "SLAs overdue:     %s\n", highlight(report.SLAsOverdue))
			fmt.Fprintf(out, "Pendings expired: %d\n", report.PendingsExpired)
			if report.Errors > 0 {
				return fmt.Errorf("sweep finished with %s", plural(report.Errors, "error"))
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "print the report as JSON")

	return cmd
}

func highlight(n int) string {
	if n == 0 {
		return okColor.Sprint(n)
	}
	return warnColor.Sprint(n)
}

// PurgeCmd returns the purge command
func PurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <protocol-id>...",
		Short: "Delete protocols and everything recorded for them",
		Long: `Permanently delete protocols with their stages, SLA, pendings and documents.
This cannot be undone, so --yes is required.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to purge without --yes")
			}

			lc, closeFn, err := openLifecycle(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range args {
				if err := lc.Protocols.Purge(cmd.Context(), id); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s: %v\n", checkMark(false), id, err)
					continue
				}
				fmt.Fprintf(out, "%s %s purged\n", checkMark(true), id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d protocols not purged", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "confirm permanent deletion")

	return cmd
}
