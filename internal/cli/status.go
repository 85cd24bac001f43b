package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <evidence-id>",
	Short: "Show processing status for a piece of evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ev models.Evidence
		if err := newClient().getJSON(cmd.Context(), "/api/evidence/"+args[0], &ev); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintf(w, "ID\t%s\n", ev.ID)
		fmt.Fprintf(w, "Filename\t%s\n", ev.OriginalFilename)
		fmt.Fprintf(w, "Status\t%s\n", ev.Status)
		fmt.Fprintf(w, "Progress\t%.0f%%\n", ev.Progress)
		fmt.Fprintf(w, "SHA-256\t%s\n", ev.SHA256)
		fmt.Fprintf(w, "Uploaded\t%s\n", ev.UploadedAt.Local().Format("2006-01-02 15:04:05"))
		if ev.Duration > 0 {
			fmt.Fprintf(w, "Duration\t%.1fs @ %.2f fps (%s)\n", ev.Duration, ev.FPS, ev.Resolution)
		}
		if ev.ProcessedAt != nil {
			fmt.Fprintf(w, "Processed\t%s\n", ev.ProcessedAt.Local().Format("2006-01-02 15:04:05"))
		}
		if ev.ErrorMessage != "" {
			fmt.Fprintf(w, "Error\t%s\n", ev.ErrorMessage)
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded evidence, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var items []models.Evidence
		if err := newClient().getJSON(cmd.Context(), fmt.Sprintf("/api/evidence/?limit=%d", listLimit), &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No evidence found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tPROGRESS\tUPLOADED")
		fmt.Fprintln(w, "--\t--------\t------\t--------\t--------")
		for _, ev := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\n",
				ev.ID, ev.OriginalFilename, ev.Status, ev.Progress,
				ev.UploadedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <evidence-id>",
	Short: "Queue an evidence file for another processing run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().postJSON(cmd.Context(), "/api/evidence/"+args[0]+"/reprocess", nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Evidence %s queued for processing\n", args[0])
		return pollUntilDone(cmd.Context(), newClient(), args[0])
	},
}

var listLimit int

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "Maximum number of rows")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reprocessCmd)
}
