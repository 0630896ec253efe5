package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-engine/internal/matcher"
	"github.com/kozaktomas/face-engine/internal/web/handlers"
)

// RecognizeOutput is the JSON form of a recognition run.
type RecognizeOutput struct {
	Image      string                  `json:"image"`
	Threshold  float64                 `json:"threshold"`
	FacesCount int                     `json:"faces_count"`
	Faces      []handlers.FaceResponse `json:"faces"`
	Annotated  string                  `json:"annotated,omitempty"`
}

func newRecognizeOutput(image string, threshold float64, labels []matcher.Label, annotated string) RecognizeOutput {
	out := RecognizeOutput{
		Image:      image,
		Threshold:  threshold,
		FacesCount: len(labels),
		Faces:      make([]handlers.FaceResponse, 0, len(labels)),
		Annotated:  annotated,
	}
	for _, label := range labels {
		out.Faces = append(out.Faces, handlers.NewFaceResponse(label))
	}
	return out
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// printLabels prints one row per detected face.
func printLabels(labels []matcher.Label, threshold float64, elapsed time.Duration) {
	if len(labels) == 0 {
		fmt.Println("No face found")
		return
	}

	fmt.Printf("Evaluated %d face(s) using threshold %.2f in %s\n\n", len(labels), threshold, formatDuration(elapsed))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tIDENTITY\tHITS\tAVG DISTANCE\tBOX")
	fmt.Fprintln(w, "----\t--------\t----\t------------\t---")
	for i, label := range labels {
		avg := "-"
		if label.Known() {
			avg = fmt.Sprintf("%.4f", label.AvgDistance)
		}
		box := label.Region.Box
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d,%d %dx%d\n",
			i, label.Identity, label.Hits, avg, box.Min.X, box.Min.Y, box.Dx(), box.Dy())
	}
	w.Flush()

	known := 0
	for _, label := range labels {
		if label.Known() {
			known++
		}
	}
	fmt.Printf("\nRecognized: %d / %d\n", known, len(labels))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
