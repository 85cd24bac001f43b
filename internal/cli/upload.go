package cli

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forensivid/forensivid/internal/models"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var uploadOpts struct {
	InputPath    string
	Wait         bool
	PollInterval time.Duration
}

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a video file as evidence and track processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd.Context())
	},
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadOpts.InputPath, "input", "i", "", "Path to video file")
	uploadCmd.Flags().BoolVarP(&uploadOpts.Wait, "wait", "w", true, "Poll processing status until the run finishes")
	uploadCmd.Flags().DurationVar(&uploadOpts.PollInterval, "poll-interval", 2*time.Second, "Interval between status polls")
	uploadCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(ctx context.Context) error {
	file, err := os.Open(uploadOpts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	// Stream the multipart body so large videos never sit in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("video", filepath.Base(uploadOpts.InputPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	c := newClient()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/evidence/", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var ev models.Evidence
	if err := c.do(req, &ev); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Uploaded evidence %s (sha256 %s)\n", ev.ID, ev.SHA256)
	if !uploadOpts.Wait {
		fmt.Println(ev.ID)
		return nil
	}
	return pollUntilDone(ctx, c, ev.ID)
}

// pollUntilDone follows processing_progress until the run reaches a
// terminal status.
func pollUntilDone(ctx context.Context, c *client, evidenceID string) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Processing "+evidenceID[:8]),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	ticker := time.NewTicker(uploadOpts.PollInterval)
	defer ticker.Stop()

	for {
		var status struct {
			Status   string  `json:"status"`
			Progress float64 `json:"progress"`
			Error    string  `json:"error,omitempty"`
		}
		if err := c.getJSON(ctx, "/api/evidence/"+evidenceID+"/status", &status); err != nil {
			return err
		}
		bar.Set(int(status.Progress))

		switch status.Status {
		case string(models.StatusCompleted):
			fmt.Fprintln(os.Stderr)
			fmt.Fprintf(os.Stderr, "Processing complete. Findings: %s/api/evidence/%s/findings\n", c.baseURL, evidenceID)
			return nil
		case string(models.StatusFailed):
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("processing failed: %s", status.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
