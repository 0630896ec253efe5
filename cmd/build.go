package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/dataset"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compute reference embeddings from a labelled dataset",
	Long: `Compute reference embeddings for every identity of a dataset.

The dataset holds one directory per person with photos of that person.
Only photos with exactly one detected face are used; the others are
skipped with a warning. The embeddings directory is deleted and rebuilt
from scratch.

Examples:
  face-engine build --dataset ./dataset
  face-engine build -d ./dataset -e ./embeddings -p shape.dat -f resnet.dat`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("dataset", "d", "", "Dataset directory, one subdirectory per identity (FACE_DATASET_PATH)")
	buildCmd.Flags().StringSliceP("embeddings", "e", nil, "Embeddings directory to (re)create, the first one is used (FACE_EMBEDDINGS_PATH)")
	buildCmd.Flags().Bool("progress", true, "Show a progress bar")
	addModelFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Paths.Dataset == "" {
		return errors.New("no dataset path designated, use --dataset or FACE_DATASET_PATH")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	embeddingsPath := embeddingRoots(cmd, cfg)[0]
	if cmd.Flags().Changed("progress") {
		cfg.Dataset.Progress = mustGetBool(cmd, "progress")
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}

	_, err = buildDataset(cmd.Context(), engine, cfg, log, embeddingsPath)
	return err
}

// buildDataset runs the dataset builder and prints its summary.
func buildDataset(ctx context.Context, engine face.Engine, cfg *config.Config, log zerolog.Logger, embeddingsPath string) (dataset.Summary, error) {
	var progress io.Writer
	if cfg.Dataset.Progress {
		progress = os.Stderr
	}

	builder := dataset.New(engine, dataset.Options{
		Extensions: cfg.Dataset.Extensions,
		Progress:   progress,
		Logger:     logging.Component(log, "dataset"),
	})

	fmt.Printf("Building embeddings from %s into %s\n", cfg.Paths.Dataset, embeddingsPath)
	start := time.Now()
	summary, err := builder.Build(ctx, cfg.Paths.Dataset, embeddingsPath)
	if err != nil {
		return summary, fmt.Errorf("failed to build dataset: %w", err)
	}

	fmt.Printf("\nBuild complete in %s:\n", formatDuration(time.Since(start)))
	fmt.Printf("  Identities:        %d\n", summary.Identities)
	fmt.Printf("  Samples:           %d\n", summary.Samples)
	fmt.Printf("  Embeddings saved:  %d\n", summary.Qualified)
	fmt.Printf("  Samples skipped:   %d\n", summary.Skipped)
	if len(summary.Empty) > 0 {
		fmt.Printf("  Without embedding: %v\n", summary.Empty)
	}
	if len(summary.Duplicates) > 0 {
		fmt.Printf("  Duplicate names:   %v\n", summary.Duplicates)
	}
	if len(summary.Failed) > 0 {
		fmt.Printf("  Failed:            %v\n", summary.Failed)
	}
	return summary, nil
}
