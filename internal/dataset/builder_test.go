package dataset

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/kozaktomas/face-engine/internal/face"
	"github.com/kozaktomas/face-engine/internal/face/facetest"
	"github.com/kozaktomas/face-engine/internal/store"
)

var errDetector = errors.New("detector failure")

// newEngine detects as many faces as the red channel of the sample says;
// red 255 makes detection fail. Embeddings are {R, G, B} of the crop.
func newEngine() *facetest.Engine {
	return &facetest.Engine{
		Regions: func(img image.Image) ([]face.Region, error) {
			r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
			n := int(r >> 8)
			if n == 255 {
				return nil, errDetector
			}
			regions := make([]face.Region, n)
			for i := range regions {
				regions[i] = face.Region{Box: img.Bounds()}
			}
			return regions, nil
		},
	}
}

// writeSample stores a uniform PNG whose red channel is the face count.
func writeSample(t *testing.T, dir, name string, faces, marker uint8) {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, facetest.Swatch(color.RGBA{faces, marker, 0, 255}, 8, 8)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_SkipsMultiFaceSample(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")

	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)
	writeSample(t, filepath.Join(dataset, "alice"), "b.jpg", 2, 20) // two faces
	writeSample(t, filepath.Join(dataset, "alice"), "c.jpg", 1, 30)

	engine := newEngine()
	summary, err := New(engine, Options{}).Build(context.Background(), dataset, embeddings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if summary.Samples != 3 || summary.Qualified != 2 || summary.Skipped != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	s, err := store.Load(embeddings)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	embs, ok := s.Get("alice")
	if !ok || len(embs) != 2 {
		t.Fatalf("expected 2 embeddings for alice, got %d", len(embs))
	}
	// Files are processed in name order: a.jpg then c.jpg.
	want := [][]float32{{1.0 / 255, 10.0 / 255, 0}, {1.0 / 255, 30.0 / 255, 0}}
	for i, e := range embs {
		if !slices.Equal(e.Values(), want[i]) {
			t.Errorf("embedding %d = %v, want %v", i, e.Values(), want[i])
		}
	}

	// Embeddings are computed in one batch per identity.
	if got := engine.EmbedBatches(); !slices.Equal(got, []int{2}) {
		t.Errorf("expected one batch of 2 crops, got %v", got)
	}
}

func TestBuild_SkipsBadSamples(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")
	bob := filepath.Join(dataset, "bob")

	writeSample(t, bob, "0.jpg", 0, 1)   // no face
	writeSample(t, bob, "1.png", 255, 1) // detector error
	writeSample(t, bob, "2.JPG", 1, 50)  // qualifies, upper case extension
	writeSample(t, bob, "3.gif", 1, 60)  // extension not accepted
	writeSample(t, bob, ".4.jpg", 1, 70) // hidden
	if err := os.WriteFile(filepath.Join(bob, "5.jpg"), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	summary, err := New(newEngine(), Options{}).Build(context.Background(), dataset, embeddings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if summary.Samples != 4 || summary.Qualified != 1 || summary.Skipped != 3 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestBuild_EmptyIdentity(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")

	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)
	writeSample(t, filepath.Join(dataset, "carol"), "group.jpg", 3, 10)
	if err := os.MkdirAll(filepath.Join(dataset, "dave"), 0750); err != nil {
		t.Fatal(err)
	}

	summary, err := New(newEngine(), Options{}).Build(context.Background(), dataset, embeddings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !slices.Equal(summary.Empty, []string{"carol", "dave"}) {
		t.Errorf("expected carol and dave to be empty, got %v", summary.Empty)
	}
	for _, name := range []string{"carol", "dave"} {
		if info, err := os.Stat(filepath.Join(embeddings, name)); err != nil || !info.IsDir() {
			t.Errorf("expected empty directory for %s", name)
		}
	}

	// Empty identities never enter a loaded store.
	s, err := store.Load(embeddings)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !slices.Equal(s.Names(), []string{"alice"}) {
		t.Errorf("expected only alice in store, got %v", s.Names())
	}
}

func TestBuild_ResetsEmbeddingsRoot(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")

	stale := filepath.Join(embeddings, "ghost")
	if err := os.MkdirAll(stale, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "0"), []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)

	if _, err := New(newEngine(), Options{}).Build(context.Background(), dataset, embeddings); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale identity should be removed by a rebuild")
	}
}

func TestBuild_Errors(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)

	t.Run("missing dataset", func(t *testing.T) {
		_, err := New(newEngine(), Options{}).Build(context.Background(), filepath.Join(root, "nope"), filepath.Join(root, "out"))
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("embeddings contains dataset", func(t *testing.T) {
		_, err := New(newEngine(), Options{}).Build(context.Background(), dataset, root)
		if !errors.Is(err, ErrOverlappingPaths) {
			t.Errorf("expected ErrOverlappingPaths, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dataset, "alice", "a.jpg")); err != nil {
			t.Error("dataset must survive a refused build")
		}
	})

	t.Run("embeddings inside dataset", func(t *testing.T) {
		_, err := New(newEngine(), Options{}).Build(context.Background(), dataset, filepath.Join(dataset, "out"))
		if !errors.Is(err, ErrOverlappingPaths) {
			t.Errorf("expected ErrOverlappingPaths, got %v", err)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(newEngine(), Options{}).Build(ctx, dataset, filepath.Join(root, "out"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestBuild_ContinuesAfterIdentityFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("backslash is a path separator on windows")
	}
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")

	writeSample(t, filepath.Join(dataset, `a\b`), "a.jpg", 1, 10) // not a valid identity name
	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)
	writeSample(t, filepath.Join(dataset, "bob"), "a.jpg", 1, 99) // embedding batch fails
	writeSample(t, filepath.Join(dataset, "zoe"), "a.jpg", 1, 30)

	engine := newEngine()
	engine.BatchErr = func(crops []image.Image) error {
		_, g, _, _ := crops[0].At(crops[0].Bounds().Min.X, crops[0].Bounds().Min.Y).RGBA()
		if g>>8 == 99 {
			return errors.New("server down")
		}
		return nil
	}

	summary, err := New(engine, Options{}).Build(context.Background(), dataset, embeddings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !slices.Equal(summary.Failed, []string{`a\b`, "bob"}) {
		t.Errorf("expected a\\b and bob to fail, got %v", summary.Failed)
	}
	if summary.Identities != 2 || summary.Qualified != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}

	s, err := store.Load(embeddings)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !slices.Equal(s.Names(), []string{"alice", "zoe"}) {
		t.Errorf("expected alice and zoe in store, got %v", s.Names())
	}
}

func TestBuild_NormalizedDuplicateDirectory(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	embeddings := filepath.Join(root, "embeddings")

	nfd := "Zo\u0065\u0301" // "Zoé" with a combining accent
	nfc := "Zo\u00e9"
	writeSample(t, filepath.Join(dataset, nfd), "a.jpg", 1, 10)
	writeSample(t, filepath.Join(dataset, nfd), "b.jpg", 1, 20)
	writeSample(t, filepath.Join(dataset, nfc), "a.jpg", 1, 30)

	summary, err := New(newEngine(), Options{}).Build(context.Background(), dataset, embeddings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(summary.Duplicates) != 1 || summary.Identities != 1 {
		t.Fatalf("expected one identity and one duplicate, got %+v", summary)
	}

	s, err := store.Load(embeddings)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	embs, ok := s.Get(nfc)
	if !ok {
		t.Fatalf("expected identity %q, got %v", nfc, s.Names())
	}
	// The NFD name sorts first ('e' < 0xC3), so it is kept and the NFC
	// directory is skipped instead of overwriting its files.
	if summary.Duplicates[0] != nfc {
		t.Errorf("expected the NFC directory to be skipped, got %q", summary.Duplicates[0])
	}
	want := [][]float32{{1.0 / 255, 10.0 / 255, 0}, {1.0 / 255, 20.0 / 255, 0}}
	if len(embs) != len(want) {
		t.Fatalf("expected %d embeddings, got %d", len(want), len(embs))
	}
	for i, e := range embs {
		if !slices.Equal(e.Values(), want[i]) {
			t.Errorf("embedding %d = %v, want %v", i, e.Values(), want[i])
		}
	}
}

func TestBuild_Progress(t *testing.T) {
	root := t.TempDir()
	dataset := filepath.Join(root, "dataset")
	writeSample(t, filepath.Join(dataset, "alice"), "a.jpg", 1, 10)
	writeSample(t, filepath.Join(dataset, "alice"), "b.jpg", 1, 20)

	var progress bytes.Buffer
	if _, err := New(newEngine(), Options{Progress: &progress}).Build(context.Background(), dataset, filepath.Join(root, "out")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if progress.Len() == 0 {
		t.Error("expected progress output")
	}
}

func TestCheckOverlap(t *testing.T) {
	tests := []struct {
		name       string
		dataset    string
		embeddings string
		wantErr    bool
	}{
		{"siblings", "/data/dataset", "/data/embeddings", false},
		{"same", "/data/dataset", "/data/dataset", true},
		{"embeddings is parent", "/data/dataset", "/data", true},
		{"embeddings inside dataset", "/data/dataset", "/data/dataset/out", true},
		{"prefix only", "/data/dataset2", "/data/dataset", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkOverlap(tc.dataset, tc.embeddings)
			if (err != nil) != tc.wantErr {
				t.Errorf("checkOverlap(%q, %q) = %v, wantErr %v", tc.dataset, tc.embeddings, err, tc.wantErr)
			}
		})
	}
}
