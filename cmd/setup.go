package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/inference"
	"github.com/kozaktomas/face-engine/internal/logging"
)

// setup loads the configuration, applies command line overrides and builds the logger.
// Flags only override the configuration when they were set explicitly.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = logJSON
	}
	if flags.Changed("predictor") {
		cfg.Models.ShapePredictor = mustGetString(cmd, "predictor")
	}
	if flags.Changed("face-model") {
		cfg.Models.Recognition = mustGetString(cmd, "face-model")
	}
	if flags.Changed("mmod") {
		cfg.Models.MMOD = mustGetString(cmd, "mmod")
	}
	if flags.Changed("dataset") {
		cfg.Paths.Dataset = mustGetString(cmd, "dataset")
	}
	if flags.Changed("threshold") {
		cfg.Matching.Threshold = mustGetFloat64(cmd, "threshold")
	}

	log := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Writer: os.Stderr})
	return cfg, log, nil
}

// addModelFlags registers the model file flags shared by every command that
// talks to the inference server.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("predictor", "p", "", "Shape predictor model file (FACE_SHAPE_MODEL)")
	cmd.Flags().StringP("face-model", "f", "", "Face recognition model file (FACE_RECOGNITION_MODEL)")
	cmd.Flags().StringP("mmod", "m", "", "Optional MMOD face detector model; HOG is used without it (FACE_MMOD_MODEL)")
}

// addEmbeddingsFlag registers the repeatable embeddings root flag.
func addEmbeddingsFlag(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("embeddings", "e", nil, "Embeddings root, repeat to merge several (FACE_EMBEDDINGS_PATH)")
}

// embeddingRoots returns the embeddings roots from the flag or the configuration.
func embeddingRoots(cmd *cobra.Command, cfg *config.Config) []string {
	if cmd.Flags().Changed("embeddings") {
		if roots := mustGetStringSlice(cmd, "embeddings"); len(roots) > 0 {
			return roots
		}
	}
	if cfg.Paths.Embeddings == "" {
		return []string{constants.DefaultEmbeddingsDir}
	}
	return []string{cfg.Paths.Embeddings}
}

func openEngine(cfg *config.Config, log zerolog.Logger) (*inference.Client, error) {
	return inference.Open(cfg, inference.WithLogger(logging.Component(log, "inference")))
}
