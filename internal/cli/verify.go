package cli

import (
	"fmt"
	"os"

	"github.com/forensivid/forensivid/internal/integrity"
	"github.com/forensivid/forensivid/internal/models"
	"github.com/spf13/cobra"
)

var verifyInput string

var verifyCmd = &cobra.Command{
	Use:   "verify <evidence-id>",
	Short: "Verify a local copy of a video against the server's recorded hashes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ev models.Evidence
		if err := newClient().getJSON(cmd.Context(), "/api/evidence/"+args[0], &ev); err != nil {
			return err
		}

		content, err := os.ReadFile(verifyInput)
		if err != nil {
			return fmt.Errorf("failed to read local file: %w", err)
		}

		sha256Hex := integrity.SHA256Hex(content)
		sha512Hex := integrity.SHA512Hex(content)

		if sha256Hex != ev.SHA256 {
			return fmt.Errorf("SHA-256 mismatch: local %s, recorded %s", sha256Hex, ev.SHA256)
		}
		if ev.SHA512 != "" && sha512Hex != ev.SHA512 {
			return fmt.Errorf("SHA-512 mismatch: local %s, recorded %s", sha512Hex, ev.SHA512)
		}

		fmt.Printf("OK: %s matches evidence %s\n", verifyInput, ev.ID)
		fmt.Printf("  sha256 %s\n", sha256Hex)
		fmt.Printf("  sha512 %s\n", sha512Hex)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyInput, "input", "i", "", "Path to the local copy of the video")
	verifyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(verifyCmd)
}
