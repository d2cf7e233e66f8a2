// Command vexfsctl is the administrative CLI over a VexFS engine: mount a
// data directory, inspect index/collection status, drive ManageIndex
// sub-operations, and run ad hoc searches, without going through the
// ioctl ABI's binary wire format.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vexfs/vexfs-core/internal/knn"
	"github.com/vexfs/vexfs-core/internal/simkernel"
	"github.com/vexfs/vexfs-core/internal/vstore"
	"github.com/vexfs/vexfs-core/vexfs"
)

var (
	dataDir   string
	dimension int
	admin     bool
)

var rootCmd = &cobra.Command{
	Use:   "vexfsctl",
	Short: "Administrative CLI for a VexFS engine instance",
	Long:  `vexfsctl mounts a VexFS data directory and drives engine operations: storing and searching vectors, inspecting index status, and running ManageIndex sub-operations.`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report engine health and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, ctx, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close(ctx)

		health, err := engine.Health(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			b, _ := json.MarshalIndent(health, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		fmt.Printf("status: %s\n", health.Status)
		fmt.Printf("index state: %s (%d live vectors)\n", engine.GraphState(), engine.GraphSize())
		for name, check := range health.Checks {
			fmt.Printf("  %-20s healthy=%v %s\n", name, check.Healthy, check.Message)
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <inode>",
	Short: "Store a vector under the given inode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inode, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid inode: %w", err)
		}
		vectorStr, _ := cmd.Flags().GetString("vector")
		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		engine, ctx, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close(ctx)

		id, err := engine.Store(ctx, vector, inode, vstore.DTypeF32, len(vector), vstore.CompressionNone)
		if err != nil {
			return fmt.Errorf("store failed: %w", err)
		}
		fmt.Printf("stored vector id %d\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a k-NN search against the engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}
		k, _ := cmd.Flags().GetInt("top-k")

		engine, ctx, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close(ctx)

		results, err := engine.Search(ctx, &knn.Query{
			Vector:   vector,
			K:        k,
			Metric:   simkernel.Cosine,
			EfSearch: 64,
			Scoring:  knn.ScoreHybrid,
			Weights:  knn.DefaultHybridWeights(),
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for _, r := range results {
			fmt.Printf("rank=%d id=%d inode=%d distance=%.6f score=%.4f\n", r.Rank, r.VectorID, r.Inode, r.Distance, r.Score)
		}
		return nil
	},
}

var manageIndexCmd = &cobra.Command{
	Use:   "manage-index <operation>",
	Short: "Run a ManageIndex sub-operation (rebuild|backup|optimize)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inode, _ := cmd.Flags().GetUint64("inode")
		engine, ctx, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close(ctx)
		if admin {
			ctx = vexfs.WithOpMeta(ctx, vexfs.OpMeta{Admin: true})
		}

		switch args[0] {
		case "rebuild":
			if err := engine.CompactTombstones(ctx); err != nil {
				return err
			}
			fmt.Println("tombstone compaction complete")
		case "backup":
			if err := engine.Checkpoint(ctx); err != nil {
				return err
			}
			fmt.Println("checkpoint complete")
		case "optimize":
			result, err := engine.Compact(ctx, inode)
			if err != nil {
				return err
			}
			fmt.Printf("compaction: %s -> %s, %d clusters, %d vectors rewritten\n",
				result.LayoutBefore, result.LayoutAfter, result.ClustersFormed, result.VectorsRewritten)
		default:
			return fmt.Errorf("unknown manage-index operation %q", args[0])
		}
		return nil
	},
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("--vector is required")
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vector = append(vector, float32(v))
	}
	return vector, nil
}

func openEngine() (*vexfs.Engine, context.Context, error) {
	ctx := context.Background()
	cfg := vexfs.DefaultConfig(dimension)
	if dataDir != "" {
		cfg.DataPath = dataDir + "/vectors.dat"
		cfg.GraphPath = dataDir + "/graph.bin"
		cfg.WALPath = dataDir + "/graph.wal"
	}
	engine, err := vexfs.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening engine: %w", err)
	}
	return engine, ctx, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (empty for an in-memory engine)")
	rootCmd.PersistentFlags().IntVarP(&dimension, "dimension", "n", 128, "Vector dimension")
	rootCmd.PersistentFlags().BoolVar(&admin, "admin", false, "Assert the administrative capability for operations that require it")

	statusCmd.Flags().Bool("json", false, "Output as JSON")

	addCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	addCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	searchCmd.Flags().Int("top-k", 10, "Number of results")
	searchCmd.MarkFlagRequired("vector")

	manageIndexCmd.Flags().Uint64("inode", 0, "Inode to operate on (optimize only)")

	rootCmd.AddCommand(statusCmd, addCmd, searchCmd, manageIndexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
