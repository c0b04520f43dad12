package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tamperdetect/database"
	"tamperdetect/detector"
	"tamperdetect/metadata"
	"tamperdetect/reference"
	"tamperdetect/report"
	"tamperdetect/signalhandler"
	"tamperdetect/storage"
)

// fileStore is a LocalStore whose URLs are file paths, for printing.
type fileStore struct {
	*storage.LocalStore
}

func (s fileStore) URL(key string) string {
	return filepath.Join(s.Dir(), key)
}

func newCompareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare ORIGINAL CANDIDATE",
		Short: "Compare a candidate image with an original",
		Long: `Compare CANDIDATE with ORIGINAL, write the difference map, the threshold
mask and both images outlined in red to --out, and print a report.

Examples:
  # Compare two files and write the outputs to ./out
  tamperdetect compare original.png suspect.jpg --out ./out

  # Ignore regions smaller than 25 pixels, print Markdown
  tamperdetect compare original.png suspect.jpg --min-area 25 --format markdown`,
		Args: cobra.ExactArgs(2),
		RunE: a.runCompare,
	}

	cmd.Flags().StringP("out", "o", ".", "Directory for the generated images")
	cmd.Flags().StringP("format", "f", report.FormatText, "Report format: text, json or markdown")
	cmd.Flags().Int("min-area", 0, "Drop regions with a smaller bounding box (overrides min_region_area)")
	cmd.Flags().Bool("no-history", false, "Do not record the comparison in the database")

	return cmd
}

func (a *app) runCompare(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	format, _ := cmd.Flags().GetString("format")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	minArea := a.cfg.MinRegionArea
	if cmd.Flags().Changed("min-area") {
		minArea, _ = cmd.Flags().GetInt("min-area")
		if minArea < 0 {
			return fmt.Errorf("--min-area must not be negative")
		}
	}

	// Fail on a bad format before doing any work.
	writer, err := report.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	originalPath, candidatePath := args[0], args[1]
	original, err := readImageFile(originalPath)
	if err != nil {
		return err
	}
	candidate, err := os.ReadFile(candidatePath)
	if err != nil {
		return fmt.Errorf("failed to read candidate: %w", err)
	}

	local, err := storage.NewLocalStore(outDir)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var db *sql.DB
	if !noHistory {
		db, err = database.InitDatabase(a.cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()
	}

	exif := metadata.NewExtractor(true)
	defer exif.Close()

	det, err := detector.New(detector.Config{
		References:    reference.NewMemoryProvider(original.Name, original.Data),
		Store:         fileStore{local},
		DB:            db,
		Metadata:      exif,
		MinRegionArea: minArea,
		MaxConcurrent: 1,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalhandler.SetupHandler(cmd.Context())
	defer cancel()

	rep, err := det.Compare(ctx, original, filepath.Base(candidatePath), candidate)
	if err != nil {
		return err
	}

	_, err = writer.Write(rep)
	return err
}

// readImageFile loads path as a reference image.
func readImageFile(path string) (*reference.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read original: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read original: %w", err)
	}
	return &reference.Image{
		Name:    filepath.Base(path),
		Path:    path,
		Data:    data,
		ModTime: info.ModTime(),
	}, nil
}
