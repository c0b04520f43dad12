package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tamperdetect/database"
	"tamperdetect/storage"
	"tamperdetect/types"
)

func newReferenceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Manage the original image",
		Long:  `Show or replace the original image that uploads are compared against.`,
	}
	cmd.PersistentFlags().Bool("json", false, "Print the reference as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "set FILE",
		Short: "Replace the original image with FILE",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runReferenceSet,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current original image",
		Args:  cobra.NoArgs,
		RunE:  a.runReferenceShow,
	})

	return cmd
}

func (a *app) runReferenceSet(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	db, err := database.InitDatabase(a.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Reference management never writes outputs.
	store, err := storage.NewLocalStore(a.cfg.UploadsDir)
	if err != nil {
		return err
	}
	det, err := a.newDetector(db, store, nil)
	if err != nil {
		return err
	}

	info, err := det.SetReference(cmd.Context(), filepath.Base(args[0]), data)
	if err != nil {
		return err
	}
	return printReference(cmd, info)
}

func (a *app) runReferenceShow(cmd *cobra.Command, _ []string) error {
	store, err := storage.NewLocalStore(a.cfg.UploadsDir)
	if err != nil {
		return err
	}
	det, err := a.newDetector(nil, store, nil)
	if err != nil {
		return err
	}

	info, err := det.CurrentReference(cmd.Context())
	if err != nil {
		return err
	}

	// Prefer the registration time when the file was set through tamperdetect.
	if _, statErr := os.Stat(a.cfg.DatabasePath); statErr == nil {
		if db, err := database.OpenDatabase(a.cfg.DatabasePath); err == nil {
			if reg, err := database.CurrentReference(db); err == nil && reg.SHA256 == info.SHA256 {
				info.CreatedAt = reg.CreatedAt
			}
			db.Close()
		}
	}

	return printReference(cmd, info)
}

func printReference(cmd *cobra.Command, info *types.ReferenceInfo) error {
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return writeReference(out, info)
}

func writeReference(w io.Writer, info *types.ReferenceInfo) error {
	_, err := fmt.Fprintf(w, "Original: %s\n  Size:    %dx%d (%d bytes)\n  SHA-256: %s\n  aHash:   %s\n  Since:   %s\n",
		info.Path, info.Width, info.Height, info.Size, info.SHA256, info.AverageHash,
		info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	return err
}
