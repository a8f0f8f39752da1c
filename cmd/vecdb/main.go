// Package main provides the vecdb CLI entry point: a thin pass-through
// over the core engine, not a protocol server. The HTTP/RPC surface is an
// external collaborator and lives outside this binary.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/vecdb/pkg/collection"
	"github.com/orneryd/vecdb/pkg/config"
	"github.com/orneryd/vecdb/pkg/filter"
	"github.com/orneryd/vecdb/pkg/storagemgr"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vecdb",
		Short: "vecdb - embeddable vector search engine",
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(createCollectionCmd())
	rootCmd.AddCommand(upsertCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(snapshotCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vecdb v%s (%s)\n", version, commit)
		},
	}
}

// openManager loads config from the environment, opens the storage manager
// rooted at the data directory, then creates any collection listed in an
// optional vecdb.yaml there that does not already exist.
func openManager(dataDir string) (*storagemgr.Manager, error) {
	cfg := config.LoadFromEnv()
	if dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mgr, err := storagemgr.New(cfg)
	if err != nil {
		return nil, err
	}

	bootstrapPath := cfg.Database.DataDir + "/vecdb.yaml"
	cols, err := config.LoadBootstrapFile(bootstrapPath)
	if err != nil {
		return nil, err
	}
	for _, bc := range cols {
		if mgr.Exists(bc.Name) {
			continue
		}
		_ = mgr.CreateCollection(bc.Name, collection.Config{
			VectorDim:  bc.VectorDim,
			Distance:   collection.Distance(bc.Distance),
			UseHNSW:    bc.UseHNSW,
			EnableBM25: bc.EnableBM25,
		})
	}

	return mgr, nil
}

func createCollectionCmd() *cobra.Command {
	var dataDir, distance string
	var dim int
	var useHNSW, enableBM25 bool

	cmd := &cobra.Command{
		Use:   "create-collection NAME",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(dataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()

			err = mgr.CreateCollection(args[0], collection.Config{
				VectorDim:  dim,
				Distance:   collection.Distance(distance),
				UseHNSW:    useHNSW,
				EnableBM25: enableBM25,
			})
			if err != nil {
				return err
			}
			return mgr.Save()
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides VECDB_DATA_DIR)")
	cmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension (0 for sparse-only)")
	cmd.Flags().StringVar(&distance, "distance", "cosine", "Distance metric: cosine, dot, euclidean")
	cmd.Flags().BoolVar(&useHNSW, "hnsw", true, "Enable the HNSW graph index")
	cmd.Flags().BoolVar(&enableBM25, "bm25", false, "Enable the BM25 full-text index")
	return cmd
}

// upsertPointJSON is the newline-delimited JSON shape read from stdin by
// `upsert`.
type upsertPointJSON struct {
	ID          string                 `json:"id"`
	Vector      []float32              `json:"vector"`
	Multivector [][]float32            `json:"multivector,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

func upsertCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "upsert COLLECTION",
		Short: "Upsert points from newline-delimited JSON read on stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(dataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()

			if !mgr.Exists(args[0]) {
				return fmt.Errorf("collection %q does not exist", args[0])
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
			count := 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var in upsertPointJSON
				if err := json.Unmarshal(line, &in); err != nil {
					return fmt.Errorf("line %d: %w", count+1, err)
				}
				if _, err := mgr.UpsertPoint(args[0], collection.Point{
					ID:          in.ID,
					Vector:      in.Vector,
					Multivector: in.Multivector,
					Payload:     in.Payload,
				}); err != nil {
					return fmt.Errorf("point %q: %w", in.ID, err)
				}
				count++
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d points into %q\n", count, args[0])
			return mgr.Save()
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides VECDB_DATA_DIR)")
	return cmd
}

func searchCmd() *cobra.Command {
	var dataDir string
	var k int
	var vec []float32
	var eqFilter string

	cmd := &cobra.Command{
		Use:   "search COLLECTION",
		Short: "Search a collection by vector similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(dataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()

			c, err := mgr.Get(args[0])
			if err != nil {
				return err
			}

			var f *filter.Filter
			if eqFilter != "" {
				key, val, err := parseEqFilter(eqFilter)
				if err != nil {
					return err
				}
				built := filter.Eq(key, val)
				f = &built
			}

			results := c.Search(vec, k, f)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range results {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides VECDB_DATA_DIR)")
	cmd.Flags().IntVar(&k, "k", 10, "Number of results to return")
	cmd.Flags().Float32SliceVar(&vec, "vector", nil, "Query vector, comma-separated")
	cmd.Flags().StringVar(&eqFilter, "eq", "", "Optional equality filter, key=value")
	return cmd
}

func parseEqFilter(spec string) (string, string, error) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			return spec[:i], spec[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("filter must be key=value, got %q", spec)
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage per-collection snapshot artifacts",
	}
	cmd.AddCommand(snapshotCreateCmd())
	cmd.AddCommand(snapshotListCmd())
	return cmd
}

func snapshotCreateCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "create COLLECTION",
		Short: "Create a snapshot artifact for a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(dataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()

			info, err := mgr.CreateCollectionSnapshot(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n", info.Name, info.SizeBytes, info.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides VECDB_DATA_DIR)")
	return cmd
}

func snapshotListCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "list COLLECTION",
		Short: "List a collection's snapshot artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(dataDir)
			if err != nil {
				return err
			}
			defer mgr.Close()

			infos, err := mgr.ListCollectionSnapshots(args[0])
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n", info.Name, info.SizeBytes, info.Checksum)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides VECDB_DATA_DIR)")
	return cmd
}
