package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/constants"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Regenerate embeddings and/or recognize an image in one go",
	Long: `Regenerate the embeddings from a dataset and/or recognize the faces in an image.

With --regenerate the embeddings directory is rebuilt from --dataset first.
With --input the image is evaluated against the embeddings afterwards.
The shape predictor and face recognition models are required; the MMOD
detector model is optional and HOG detection is used without it.

Examples:
  face-engine run -r -d ./dataset -p shape.dat -f resnet.dat
  face-engine run -i photo.jpg -p shape.dat -f resnet.dat -t 0.5
  face-engine run -r -d ./dataset -i photo.jpg -o labelled.jpg --json`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("dataset", "d", "", "Dataset directory, one subdirectory per identity (FACE_DATASET_PATH)")
	runCmd.Flags().BoolP("regenerate", "r", false, "Regenerate embeddings from the dataset")
	runCmd.Flags().StringP("input", "i", "", "Input image file")
	runCmd.Flags().Float64P("threshold", "t", constants.DefaultThreshold, "Distance threshold (0, 1]; smaller is stricter (FACE_THRESHOLD)")
	runCmd.Flags().StringP("output", "o", "", "Write an annotated copy of the input image to this path")
	runCmd.Flags().Bool("json", false, "Output recognition results as JSON")
	addEmbeddingsFlag(runCmd)
	addModelFlags(runCmd)
}

// checkRunArgs reports flag combinations run cannot act on.
func checkRunArgs(regenerate bool, dataset, input string) error {
	if regenerate && dataset == "" {
		return errors.New("no dataset path designated to regenerate embeddings")
	}
	if !regenerate && input == "" {
		return errors.New("nothing to do, use --regenerate and/or --input")
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	regenerate := mustGetBool(cmd, "regenerate")
	input := mustGetString(cmd, "input")
	if err := checkRunArgs(regenerate, cfg.Paths.Dataset, input); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}

	roots := embeddingRoots(cmd, cfg)
	if regenerate {
		if _, err := buildDataset(cmd.Context(), engine, cfg, log, roots[0]); err != nil {
			return err
		}
		if input != "" {
			fmt.Println()
		}
	}

	if input == "" {
		return nil
	}
	return recognizeImage(cmd.Context(), engine, cfg, log, recognizeRequest{
		input:  input,
		roots:  roots,
		output: mustGetString(cmd, "output"),
		json:   mustGetBool(cmd, "json"),
	})
}
