package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"tamperdetect/database"
	"tamperdetect/detector"
	"tamperdetect/logging"
	"tamperdetect/metadata"
	"tamperdetect/reference"
	"tamperdetect/server"
	"tamperdetect/signalhandler"
	"tamperdetect/storage"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web form and JSON API",
		Long: `Serve the upload form on the configured listen address.

The original image is the first image file in the originals directory; it can
be replaced with 'tamperdetect reference set' or PUT /api/reference.`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (overrides listen_addr)")
	cmd.Flags().Bool("no-exiftool", false, "Never call the external exiftool binary")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	cfg := a.cfg
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	noExiftool, _ := cmd.Flags().GetBool("no-exiftool")

	ctx, cancel := signalhandler.SetupHandler(cmd.Context())
	defer cancel()

	db, err := database.InitDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open output store: %w", err)
	}

	exif := metadata.NewExtractor(!noExiftool)
	defer exif.Close()

	det, err := a.newDetector(db, store, exif)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, det, store, db)
	if err != nil {
		return err
	}

	logging.LogInfo("Originals: %s, outputs: %s (%s)", cfg.OriginalsDir, cfg.UploadsDir, cfg.Storage.Backend)
	return srv.Run(ctx, cfg.ListenAddr)
}

// newDetector builds a Detector over the originals directory.
func (a *app) newDetector(db *sql.DB, store storage.Store, exif detector.MetadataReader) (*detector.Detector, error) {
	refs, err := reference.NewDirProvider(a.cfg.OriginalsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open originals directory: %w", err)
	}

	return detector.New(detector.Config{
		References:    refs,
		Store:         store,
		DB:            db,
		Metadata:      exif,
		MinRegionArea: a.cfg.MinRegionArea,
		MaxConcurrent: a.cfg.MaxConcurrent,
	})
}
