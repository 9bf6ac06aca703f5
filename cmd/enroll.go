package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll identities with reference faces",
	Long: `Enroll a single identity from images or an embedding file, or a batch of
identities described by a manifest in a directory.

The manifest (manifest.yaml) lists one entry per identity; image paths are
relative to the directory:

  - name: Alice Novak
    email: alice@example.com
    roll_number: CS-001
    branch: CSE
    year: "2"
    images: [alice/1.jpg, alice/2.jpg]

Examples:
  # Single identity from two photos
  face-attendance enroll --name "Alice Novak" --email alice@example.com \
    --roll-number CS-001 --image alice1.jpg --image alice2.jpg

  # Single identity from precomputed embeddings
  face-attendance enroll --name Bob --email bob@example.com --roll-number CS-002 \
    --embedding-file bob.json

  # Batch enrollment
  face-attendance enroll --dir ./class-2025 --concurrency 8`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Full name")
	enrollCmd.Flags().String("email", "", "Email address (unique)")
	enrollCmd.Flags().String("roll-number", "", "Roll number (unique)")
	enrollCmd.Flags().String("branch", "", "Branch")
	enrollCmd.Flags().String("year", "", "Year of study")
	enrollCmd.Flags().String("phone", "", "Phone number")
	enrollCmd.Flags().String("address", "", "Postal address")
	enrollCmd.Flags().StringSlice("image", nil, "Face image (repeatable)")
	enrollCmd.Flags().String("embedding-file", "", "JSON file with one embedding or a list of embeddings")
	enrollCmd.Flags().String("dir", "", "Directory with manifest.yaml for batch enrollment")
	enrollCmd.Flags().Int("concurrency", constants.EnrollWorkers, "Number of parallel enrollments in batch mode")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// manifestEntry is one identity of a batch enrollment manifest.
type manifestEntry struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	RollNumber string   `yaml:"roll_number"`
	Branch     string   `yaml:"branch"`
	Year       string   `yaml:"year"`
	Phone      string   `yaml:"phone"`
	Address    string   `yaml:"address"`
	Images     []string `yaml:"images"`
}

// EnrollResult represents the result of one enrollment
type EnrollResult struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Embeddings int    `json:"embeddings,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EnrollBatchResult summarizes a batch enrollment
type EnrollBatchResult struct {
	Enrolled int            `json:"enrolled"`
	Failed   int            `json:"failed"`
	Results  []EnrollResult `json:"results"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	dir := mustGetString(cmd, "dir")

	cfg, err := loadConfig()
	if err != nil {
		return err
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

	if dir != "" {
		return runEnrollBatch(ctx, svc, dir, mustGetInt(cmd, "concurrency"), jsonOutput)
	}
	return runEnrollSingle(ctx, cmd, svc, jsonOutput)
}

func runEnrollSingle(ctx context.Context, cmd *cobra.Command, svc *attendance.Service, jsonOutput bool) error {
	n := database.NewIdentity{
		Name:       mustGetString(cmd, "name"),
		Email:      mustGetString(cmd, "email"),
		RollNumber: mustGetString(cmd, "roll-number"),
		Branch:     mustGetString(cmd, "branch"),
		Year:       mustGetString(cmd, "year"),
		Phone:      mustGetString(cmd, "phone"),
		Address:    mustGetString(cmd, "address"),
	}
	imagePaths := mustGetStringSlice(cmd, "image")
	embeddingFile := mustGetString(cmd, "embedding-file")

	var (
		identity *database.Identity
		err      error
	)
	switch {
	case embeddingFile != "" && len(imagePaths) > 0:
		return errors.New("cannot specify both --image and --embedding-file")
	case embeddingFile != "":
		n.Embeddings, err = readEmbeddings(embeddingFile)
		if err != nil {
			return err
		}
		identity, err = svc.Enroll(ctx, n)
	case len(imagePaths) > 0:
		images, rerr := readImages(imagePaths)
		if rerr != nil {
			return rerr
		}
		identity, err = svc.EnrollImage(ctx, n, images...)
	default:
		return errors.New("either --image, --embedding-file or --dir is required")
	}
	if err != nil {
		return fmt.Errorf("enrolling %s: %w", n.Name, err)
	}

	result := EnrollResult{
		ID:         identity.ID,
		Name:       identity.Name,
		RollNumber: identity.RollNumber,
		Embeddings: len(identity.Embeddings),
	}
	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("Enrolled %s (%s) as %s with %d reference embedding(s)\n",
		result.Name, result.RollNumber, result.ID, result.Embeddings)
	return nil
}

// readManifest parses dir/manifest.yaml.
func readManifest(dir string) ([]manifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return entries, nil
}

// enrollEntry reads the images of one manifest entry and enrolls it.
func enrollEntry(ctx context.Context, svc *attendance.Service, dir string, e manifestEntry) EnrollResult {
	result := EnrollResult{Name: e.Name, RollNumber: e.RollNumber}

	paths := make([]string, 0, len(e.Images))
	for _, img := range e.Images {
		paths = append(paths, filepath.Join(dir, img))
	}
	images, err := readImages(paths)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	identity, err := svc.EnrollImage(ctx, database.NewIdentity{
		Name:       e.Name,
		Email:      e.Email,
		RollNumber: e.RollNumber,
		Branch:     e.Branch,
		Year:       e.Year,
		Phone:      e.Phone,
		Address:    e.Address,
	}, images...)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ID = identity.ID
	result.Embeddings = len(identity.Embeddings)
	return result
}

func runEnrollBatch(ctx context.Context, svc *attendance.Service, dir string, concurrency int, jsonOutput bool) error {
	entries, err := readManifest(dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("manifest has no entries")
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("identities"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]EnrollResult, len(entries))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = enrollEntry(gctx, svc, dir, entries[i])
			if bar != nil {
				mu.Lock()
				bar.Add(1)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch enrollment interrupted: %w", err)
	}

	summary := EnrollBatchResult{Results: results}
	for i := range results {
		if results[i].Error != "" {
			summary.Failed++
		} else {
			summary.Enrolled++
		}
	}

	if jsonOutput {
		return outputJSON(summary)
	}

	fmt.Printf("\nEnrolled: %d, failed: %d\n", summary.Enrolled, summary.Failed)
	for _, r := range results {
		if r.Error != "" {
			fmt.Printf("  - %s (%s): %s\n", r.Name, r.RollNumber, r.Error)
		}
	}
	return nil
}
