// Package dataset turns a directory of labelled face photos into an embeddings store.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/face-engine/internal/embedding"
	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/imageio"
	"github.com/kozaktomas/face-engine/internal/store"
)

var (
	// ErrNoQualifyingSample marks a sample skipped because it does not contain exactly one face.
	ErrNoQualifyingSample = errors.New("sample does not contain exactly one face")
	// ErrOverlappingPaths is returned when the embeddings root would contain or equal the dataset.
	ErrOverlappingPaths = errors.New("embeddings path overlaps dataset path")
)

// Options configures a Builder.
type Options struct {
	Extensions []string       // accepted sample extensions, imageio.DefaultExtensions when empty
	Progress   io.Writer      // progress bar destination, nil disables it
	Logger     zerolog.Logger // zero value logs nothing
}

// Builder computes reference embeddings for every identity of a dataset.
type Builder struct {
	engine   face.Engine
	filter   imageio.ExtensionFilter
	progress io.Writer
	log      zerolog.Logger
}

// Summary counts what a build processed.
type Summary struct {
	Identities int
	Samples    int
	Qualified  int
	Skipped    int
	Empty      []string // identities saved without any embedding
	Failed     []string // identities whose embeddings could not be computed or saved
	Duplicates []string // directories skipped because their name normalizes to an earlier identity
}

// New creates a Builder around engine.
func New(engine face.Engine, opts Options) *Builder {
	return &Builder{
		engine:   engine,
		filter:   imageio.NewExtensionFilter(opts.Extensions),
		progress: opts.Progress,
		log:      opts.Logger,
	}
}

type identitySamples struct {
	name  string // normalized identity name
	files []string
}

// Build walks datasetPath (one subdirectory per identity) and writes the embeddings
// of every qualifying sample under embeddingsPath, which is recreated from scratch.
// A sample qualifies when exactly one face is detected in it; other samples are
// skipped and reported. An identity whose embeddings cannot be computed or saved
// is reported in Summary.Failed and the build moves on. Only failed preconditions,
// resetting the embeddings root and context cancellation abort the build.
func (b *Builder) Build(ctx context.Context, datasetPath, embeddingsPath string) (Summary, error) {
	var summary Summary

	if err := store.RequireDir(datasetPath); err != nil {
		return summary, fmt.Errorf("dataset: %w", err)
	}
	if err := checkOverlap(datasetPath, embeddingsPath); err != nil {
		return summary, err
	}

	identities, duplicates, err := b.scan(datasetPath)
	if err != nil {
		return summary, err
	}
	summary.Duplicates = duplicates

	if err := ResetRoot(embeddingsPath); err != nil {
		return summary, err
	}

	for _, id := range identities {
		summary.Samples += len(id.files)
	}
	bar := b.newBar(summary.Samples)

	for _, id := range identities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		crops, skipped, err := b.collectCrops(ctx, id, bar)
		if err != nil {
			return summary, err
		}
		summary.Skipped += skipped

		embs, err := b.embed(ctx, crops)
		if err == nil {
			err = store.Save(id.name, embs, embeddingsPath)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.Failed = append(summary.Failed, id.name)
			b.log.Warn().Err(err).Str("identity", id.name).Msg("failed to build identity, continuing")
			continue
		}

		summary.Identities++
		summary.Qualified += len(embs)
		if len(embs) == 0 {
			summary.Empty = append(summary.Empty, id.name)
			b.log.Warn().Str("identity", id.name).Msg("no qualifying sample, identity saved without embeddings")
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	b.log.Info().
		Int("identities", summary.Identities).
		Int("samples", summary.Samples).
		Int("qualified", summary.Qualified).
		Int("skipped", summary.Skipped).
		Int("failed", len(summary.Failed)).
		Msg("dataset built")
	return summary, nil
}

// embed computes the embeddings of one identity in a single batch.
func (b *Builder) embed(ctx context.Context, crops []image.Image) ([]embedding.Embedding, error) {
	if len(crops) == 0 {
		return nil, nil
	}
	embs, err := b.engine.ComputeEmbeddings(ctx, crops)
	if err != nil {
		return nil, fmt.Errorf("failed to compute embeddings: %w", err)
	}
	if len(embs) != len(crops) {
		return nil, fmt.Errorf("failed to compute embeddings: expected %d, got %d", len(crops), len(embs))
	}
	return embs, nil
}

// collectCrops aligns the single face of every qualifying sample of an identity.
func (b *Builder) collectCrops(ctx context.Context, id identitySamples, bar *progressbar.ProgressBar) ([]image.Image, int, error) {
	var crops []image.Image
	skipped := 0

	for _, path := range id.files {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		crop, err := b.processSample(ctx, path)
		if bar != nil {
			_ = bar.Add(1)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, skipped, ctxErr
			}
			skipped++
			b.log.Warn().Err(err).Str("identity", id.name).Str("sample", path).Msg("skipping sample")
			continue
		}
		crops = append(crops, crop)
	}

	return crops, skipped, nil
}

func (b *Builder) processSample(ctx context.Context, path string) (image.Image, error) {
	img, err := imageio.LoadFile(path)
	if err != nil {
		return nil, err
	}

	regions, err := b.engine.DetectFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces: %w", err)
	}
	if len(regions) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNoQualifyingSample, len(regions))
	}

	crop, err := b.engine.AlignCrop(ctx, img, regions[0])
	if err != nil {
		return nil, fmt.Errorf("failed to align face: %w", err)
	}
	return crop, nil
}

// scan lists identities (sorted by directory name) and their accepted sample files.
// Directory names are normalized like store names; a directory whose name
// normalizes to an identity seen earlier is skipped and returned as a duplicate.
func (b *Builder) scan(datasetPath string) ([]identitySamples, []string, error) {
	entries, err := os.ReadDir(datasetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var (
		identities []identitySamples
		duplicates []string
		seen       = make(map[string]string)
	)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(datasetPath, entry.Name())
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		name := store.NormalizeName(entry.Name())
		if first, ok := seen[name]; ok {
			duplicates = append(duplicates, entry.Name())
			b.log.Warn().
				Err(store.ErrDuplicate).
				Str("identity", name).
				Str("dir", entry.Name()).
				Str("kept", first).
				Msg("skipping identity directory")
			continue
		}
		seen[name] = entry.Name()

		files, err := b.sampleFiles(dir)
		if err != nil {
			return nil, nil, err
		}
		identities = append(identities, identitySamples{name: name, files: files})
	}
	return identities, duplicates, nil
}

func (b *Builder) sampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !b.filter.Match(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func (b *Builder) newBar(total int) *progressbar.ProgressBar {
	if b.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription("Computing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// ResetRoot removes path with everything below it and recreates it empty.
func ResetRoot(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove embeddings root: %w", err)
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create embeddings root: %w", err)
	}
	return nil
}

// checkOverlap refuses an embeddings root that equals, contains or lies inside
// the dataset. The root is deleted before the build starts, and a root inside
// the dataset would be scanned as an identity.
func checkOverlap(datasetPath, embeddingsPath string) error {
	ds, err := filepath.Abs(datasetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve dataset path: %w", err)
	}
	emb, err := filepath.Abs(embeddingsPath)
	if err != nil {
		return fmt.Errorf("failed to resolve embeddings path: %w", err)
	}
	if within(emb, ds) {
		return fmt.Errorf("%w: %s contains %s", ErrOverlappingPaths, embeddingsPath, datasetPath)
	}
	if within(ds, emb) {
		return fmt.Errorf("%w: %s is inside %s", ErrOverlappingPaths, embeddingsPath, datasetPath)
	}
	return nil
}

// within reports whether path equals parent or lies below it. Both must be absolute.
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
