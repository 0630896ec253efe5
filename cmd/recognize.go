package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/annotate"
	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/constants"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/imageio"
	"github.com/kozaktomas/face-engine/internal/logging"
	"github.com/kozaktomas/face-engine/internal/matcher"
	"github.com/kozaktomas/face-engine/internal/store"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize the faces in an image",
	Long: `Detect every face in an image and match it against the stored embeddings.

A face is assigned the identity with the most reference embeddings closer
than the threshold; faces without such a reference are reported as unknown.
Several embeddings directories can be merged with repeated --embeddings flags.

Examples:
  face-engine recognize photo.jpg
  face-engine recognize photo.jpg -t 0.5 -o labelled.jpg
  face-engine recognize photo.jpg -e family -e friends --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64P("threshold", "t", constants.DefaultThreshold, "Distance threshold (0, 1]; smaller is stricter (FACE_THRESHOLD)")
	recognizeCmd.Flags().StringP("output", "o", "", "Write an annotated copy of the image to this path")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	addEmbeddingsFlag(recognizeCmd)
	addModelFlags(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}

	return recognizeImage(cmd.Context(), engine, cfg, log, recognizeRequest{
		input:  args[0],
		roots:  embeddingRoots(cmd, cfg),
		output: mustGetString(cmd, "output"),
		json:   mustGetBool(cmd, "json"),
	})
}

type recognizeRequest struct {
	input  string
	roots  []string
	output string
	json   bool
}

// recognizeImage loads the stores, labels every face of the input image and
// prints the result. The annotated copy is only written when faces were found.
func recognizeImage(ctx context.Context, engine face.Engine, cfg *config.Config, log zerolog.Logger, req recognizeRequest) error {
	s, err := store.LoadAll(req.roots, store.WithLogger(logging.Component(log, "store")))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	log.Debug().Int("identities", s.Len()).Int("embeddings", s.Total()).Msg("embeddings loaded")

	m, err := matcher.NewMatcher(engine, cfg.Matching.Threshold, matcher.WithLogger(logging.Component(log, "matcher")))
	if err != nil {
		return err
	}

	img, err := imageio.LoadFile(req.input)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	start := time.Now()
	labels, err := m.Evaluate(ctx, img, s)
	if err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", req.input, err)
	}
	elapsed := time.Since(start)

	annotated := ""
	if req.output != "" && len(labels) > 0 {
		opts := annotate.Options{MaxSize: cfg.Annotate.MaxSize, Quality: cfg.Annotate.Quality}
		if err := annotate.WriteFile(req.output, img, labels, opts); err != nil {
			return err
		}
		annotated = req.output
	}

	if req.json {
		return outputJSON(newRecognizeOutput(req.input, m.Threshold(), labels, annotated))
	}

	printLabels(labels, m.Threshold(), elapsed)
	if annotated != "" {
		fmt.Printf("Annotated image written to %s\n", annotated)
	}
	return nil
}
