package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/forensivid/forensivid/internal/integrity"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/spf13/cobra"
)

var custodyCmd = &cobra.Command{
	Use:   "custody <evidence-id>",
	Short: "Print the chain-of-custody ledger for a piece of evidence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var chain []models.CustodyRecord
		if err := newClient().getJSON(cmd.Context(), "/api/evidence/"+args[0]+"/custody", &chain); err != nil {
			return err
		}
		if len(chain) == 0 {
			fmt.Println("No custody records found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tACTOR\tDETAILS")
		fmt.Fprintln(w, "---------\t------\t-----\t-------")
		for _, rec := range chain {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
				rec.Action, rec.Actor, rec.Details)
		}
		return w.Flush()
	},
}

var certificateCmd = &cobra.Command{
	Use:   "certificate <evidence-id>",
	Short: "Fetch a signed integrity certificate and validate it locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cert integrity.Certificate
		if err := newClient().getJSON(cmd.Context(), "/api/evidence/"+args[0]+"/certificate", &cert); err != nil {
			return err
		}

		ok, err := cert.Validate()
		if err != nil {
			return fmt.Errorf("failed to validate certificate: %w", err)
		}
		if !ok {
			return fmt.Errorf("certificate signature does not match its contents")
		}
		fmt.Fprintln(os.Stderr, "Certificate signature OK")

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cert)
	},
}

func init() {
	rootCmd.AddCommand(custodyCmd)
	rootCmd.AddCommand(certificateCmd)
}
