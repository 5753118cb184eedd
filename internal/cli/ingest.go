package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"qa-assistant/internal/vectorindex"
)

var (
	ingestManifest   string
	ingestCollection string
	ingestChunkSize  int
	ingestReset      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Embed documents into a vector collection",
	Long: `Split each source into chunks, embed them with the configured provider and
store them in the collection. Sources come from arguments or a YAML manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := ingestPlan(args)
		if err != nil {
			return err
		}

		s, err := newServices(cmd.Context(), cfg)
		if err != nil {
			slog.Error("failed to bootstrap", "err", err)
			return err
		}
		defer s.close()

		total, err := runIngest(cmd.Context(), s.index, plan, func(ctx context.Context, text string) ([]float32, error) {
			return s.provider.Embed(ctx, cfg.EmbeddingModel(), text)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks into %q\n", total, plan.Collection)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestManifest, "manifest", "m", "", "YAML manifest listing sources")
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "Collection name (default COLLECTION_NAME or the manifest's)")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Maximum characters per chunk")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "Remove existing documents from the collection first")
}

// ingestPlan merges flags, arguments and the optional manifest.
func ingestPlan(args []string) (vectorindex.Manifest, error) {
	var plan vectorindex.Manifest
	if ingestManifest != "" {
		m, err := vectorindex.LoadManifest(ingestManifest)
		if err != nil {
			return vectorindex.Manifest{}, err
		}
		plan = m
	}
	for _, path := range args {
		plan.Sources = append(plan.Sources, vectorindex.Source{Path: path})
	}
	if len(plan.Sources) == 0 {
		return vectorindex.Manifest{}, errors.New("no sources given: pass files or --manifest")
	}

	switch {
	case ingestCollection != "":
		plan.Collection = ingestCollection
	case plan.Collection == "":
		plan.Collection = cfg.CollectionName
	}
	if plan.Collection == "" {
		return vectorindex.Manifest{}, errors.New("collection name is required: set COLLECTION_NAME or --collection")
	}
	if ingestChunkSize > 0 {
		plan.ChunkSize = ingestChunkSize
	}
	return plan, nil
}

func runIngest(ctx context.Context, idx *vectorindex.Index, plan vectorindex.Manifest, embed vectorindex.EmbedFunc) (int, error) {
	collection, err := idx.EnsureCollection(ctx, plan.Collection)
	if err != nil {
		return 0, err
	}
	if ingestReset {
		if err := collection.Clear(ctx); err != nil {
			return 0, err
		}
		slog.Info("cleared collection", "collection", plan.Collection)
	}

	ingester, err := vectorindex.NewIngester(collection, embed, plan.ChunkSize)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, src := range plan.Sources {
		n, err := ingester.IngestSource(ctx, src)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
