package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/forensivid/forensivid/internal/search"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <face-id>",
	Short: "Find face observations similar to a given one across all evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var matches []search.Match
		if err := newClient().getJSON(cmd.Context(), "/api/faces/"+args[0]+"/similar", &matches); err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No similar faces found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "FACE ID\tEVIDENCE\tFRAME\tDISTANCE\tPOI")
		fmt.Fprintln(w, "-------\t--------\t-----\t--------\t---")
		for _, m := range matches {
			poi := ""
			if m.Face.IsPersonOfInterest {
				poi = m.Face.POILabel
				if poi == "" {
					poi = "yes"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\t%s\n",
				m.Face.ID, m.Face.EvidenceID, m.Face.FrameNumber, m.Distance, poi)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
