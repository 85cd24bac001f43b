package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/spf13/cobra"
)

var alertsUnread bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts raised during processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/alerts/"
		if alertsUnread {
			path += "?unread=true"
		}
		var alerts []models.Alert
		if err := newClient().getJSON(cmd.Context(), path, &alerts); err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tLEVEL\tTYPE\tTITLE\tREAD\tCREATED")
		fmt.Fprintln(w, "--\t-----\t----\t-----\t----\t-------")
		for _, a := range alerts {
			read := "no"
			if a.IsRead {
				read = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Level, a.Type, a.Title, read,
				a.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var alertReadCmd = &cobra.Command{
	Use:   "read <alert-id>",
	Short: "Mark an alert as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().postJSON(cmd.Context(), "/api/alerts/"+args[0]+"/read", nil, nil)
	},
}

func init() {
	alertsCmd.AddCommand(alertReadCmd)
	alertsCmd.Flags().BoolVarP(&alertsUnread, "unread", "u", false, "Only show unread alerts")
	rootCmd.AddCommand(alertsCmd)
}
