package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-engine/internal/logging"
	"github.com/kozaktomas/face-engine/internal/store"
	"github.com/kozaktomas/face-engine/internal/web/handlers"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List the identities of the stored embeddings",
	Long: `List every identity found in the embeddings directories with the number of
reference embeddings stored for it. Identities without embeddings are not listed.

Examples:
  face-engine identities
  face-engine identities -e family -e friends --json`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
	addEmbeddingsFlag(identitiesCmd)
}

func runIdentities(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	s, err := store.LoadAll(embeddingRoots(cmd, cfg), store.WithLogger(logging.Component(log, "store")))
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	counts := s.Counts()
	if mustGetBool(cmd, "json") {
		out := make([]handlers.IdentityResponse, 0, s.Len())
		for _, name := range s.Names() {
			out = append(out, handlers.IdentityResponse{Name: name, Embeddings: counts[name]})
		}
		return outputJSON(out)
	}

	if s.Len() == 0 {
		fmt.Println("No identities found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMBEDDINGS")
	fmt.Fprintln(w, "----\t----------")
	for _, name := range s.Names() {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}
	w.Flush()

	fmt.Printf("\nTotal: %d identities, %d embeddings (dim %d)\n", s.Len(), s.Total(), s.Dim())
	return nil
}
