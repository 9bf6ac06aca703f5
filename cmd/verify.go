package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a face and record attendance",
	Long: `Match a face against the enrolled identities and record a Present event
for the best match above the threshold. A second verification on the same
day reports that attendance was already marked.

Examples:
  face-attendance verify --image capture.jpg
  face-attendance verify --embedding-file probe.json --threshold 0.7 --json`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("image", "", "Face image to verify")
	verifyCmd.Flags().String("embedding-file", "", "JSON file with a precomputed embedding")
	verifyCmd.Flags().Float64("threshold", 0, "Similarity threshold (overrides MATCH_THRESHOLD)")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// VerifyResult represents the outcome of a verification
type VerifyResult struct {
	Outcome    string  `json:"outcome"`
	IdentityID string  `json:"identity_id,omitempty"`
	Name       string  `json:"name,omitempty"`
	RollNumber string  `json:"roll_number,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Date       string  `json:"date,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	imagePath := mustGetString(cmd, "image")
	embeddingFile := mustGetString(cmd, "embedding-file")
	jsonOutput := mustGetBool(cmd, "json")

	if (imagePath == "") == (embeddingFile == "") {
		return errors.New("exactly one of --image or --embedding-file is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger(&cfg.Log, os.Stderr)
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer b.Close()

	svc, err := newService(cfg, b, logger)
	if err != nil {
		return err
	}

	var outcome attendance.Outcome
	if imagePath != "" {
		images, rerr := readImages([]string{imagePath})
		if rerr != nil {
			return rerr
		}
		outcome, err = svc.VerifyImage(ctx, images[0])
	} else {
		embeddings, rerr := readEmbeddings(embeddingFile)
		if rerr != nil {
			return rerr
		}
		if len(embeddings) != 1 {
			return fmt.Errorf("expected one embedding, got %d", len(embeddings))
		}
		outcome, err = svc.VerifyAndRecord(ctx, embeddings[0])
	}
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	result := VerifyResult{Outcome: string(outcome.Kind), Reason: outcome.Reason}
	if outcome.Event != nil {
		result.IdentityID = outcome.Identity.ID
		result.Name = outcome.Identity.Name
		result.RollNumber = outcome.Identity.RollNumber
		result.Confidence = outcome.Confidence
		result.Date = outcome.Event.DateString()
	}

	if jsonOutput {
		return outputJSON(result)
	}

	switch outcome.Kind {
	case attendance.OutcomeSuccess:
		fmt.Printf("Attendance marked for %s (%s) on %s, confidence %.4f\n",
			result.Name, result.RollNumber, result.Date, result.Confidence)
	case attendance.OutcomeAlreadyMarked:
		fmt.Printf("Attendance already marked for %s (%s) on %s\n", result.Name, result.RollNumber, result.Date)
	case attendance.OutcomeNoMatch:
		fmt.Println("No matching identity found")
	case attendance.OutcomeInvalidInput:
		fmt.Printf("Invalid input: %s\n", result.Reason)
	}
	return nil
}
