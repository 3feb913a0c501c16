// cmd/hnswtool/main.go
//
// hnswtool - a small CLI over a disk-resident HNSW index.
//
// Usage:
//
//	hnswtool create --path idx.hnsw --dims 128
//	hnswtool load   --path idx.hnsw --file vectors.csv --parallel 4
//	hnswtool query  --path idx.hnsw --vector 0.1,0.2,... --topk 10
//	hnswtool delete --path idx.hnsw --ids 7,19
//	hnswtool vacuum --path idx.hnsw
//	hnswtool stats  --path idx.hnsw
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hnswdb/pkg/hnsw"
)

func main() {
	root := &cobra.Command{
		Use:   "hnswtool",
		Short: "create, build and query a disk-resident HNSW index",
	}
	root.AddCommand(
		newCreateCmd(),
		newLoadCmd(),
		newQueryCmd(),
		newDeleteCmd(),
		newVacuumCmd(),
		newStatsCmd(),
		newCheckCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCreateCmd() *cobra.Command {
	opts := hnsw.DefaultCreateOptions(64)
	var path string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a new index file",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Create(path, opts)
			if err != nil {
				return err
			}
			defer idx.Close()
			fmt.Printf("created %s: dims=%d m=%d efbuild=%d efsearch=%d algo=%s\n",
				path, opts.Dims, opts.M, opts.EfConstruction, opts.EfSearch, opts.Algorithm)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.Flags().IntVar(&opts.Dims, "dims", opts.Dims, "vector dimensionality [1,4096]")
	cmd.Flags().IntVar(&opts.M, "m", opts.M, "base fan-out [1,64]")
	cmd.Flags().IntVar(&opts.EfConstruction, "efbuild", opts.EfConstruction, "construction beam width [1,500]")
	cmd.Flags().IntVar(&opts.EfSearch, "efsearch", opts.EfSearch, "query beam width [1,1024]")
	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", opts.Algorithm, `distance kind: "l2", "dot" or "linear"`)
	cmd.MarkFlagRequired("path")
	return cmd
}

func newLoadCmd() *cobra.Command {
	var path, file string
	var parallel int
	var linkNearest bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "bulk-load vectors from a CSV file into an existing index",
		Long: "Each line of the input file is a comma-separated list of floats: " +
			"optionally a bias column, then exactly dims vector components. " +
			"A heapPtr is minted per row from a fresh UUID, standing in for " +
			"the owning source row the surrounding database would supply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			rows, err := loadRows(file, idx.Dims())
			if err != nil {
				return err
			}

			opOpts := hnsw.OperationalOptions{IndexParallel: parallel, LinkNearest: linkNearest}
			b := hnsw.NewBuilder(idx)
			ctx := context.Background()
			if parallel > 0 {
				err = b.BuildParallel(ctx, rows, opOpts)
			} else {
				err = b.BuildSequential(ctx, rows, opOpts)
			}
			if err != nil {
				return err
			}
			fmt.Printf("loaded %d rows into %s\n", len(rows), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.Flags().StringVar(&file, "file", "", "CSV file of vectors (required)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "L0 worker count [0,20]; 0 selects sequential build")
	cmd.Flags().BoolVar(&linkNearest, "link-nearest", false, "force simple (nearest-only) neighbor selection")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("file")
	return cmd
}

func loadRows(file string, dims int) ([]hnsw.Row, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []hnsw.Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		vals := make([]float64, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
			if err != nil {
				return nil, fmt.Errorf("parsing %q: %w", line, err)
			}
			vals = append(vals, v)
		}

		var bias float32 = 1
		if len(vals) == dims+1 {
			bias = float32(vals[0])
			vals = vals[1:]
		}
		if len(vals) != dims {
			return nil, fmt.Errorf("row has %d components, want %d", len(vals), dims)
		}

		vec := make([]float32, dims)
		for i, v := range vals {
			vec[i] = float32(v)
		}
		rows = append(rows, hnsw.Row{HeapPtr: mintHeapPtr(), Vector: vec, Bias: bias})
	}
	return rows, sc.Err()
}

// mintHeapPtr stands in for the opaque row reference the host heap scan
// would otherwise supply (spec.md §1 treats that as an external
// collaborator).
func mintHeapPtr() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}

func newQueryCmd() *cobra.Command {
	var path, vectorStr string
	var topK int
	var threshold float64
	cmd := &cobra.Command{
		Use:   "query",
		Short: "run a top-k query against the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			q, err := parseVector(vectorStr)
			if err != nil {
				return err
			}

			scan := hnsw.OpenScan(idx, hnsw.ScanKey{Query: q, Threshold: float32(threshold), TopK: topK})
			if err := scan.First(); err != nil {
				return err
			}
			for {
				heapPtr, ok, err := scan.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Println(heapPtr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.Flags().StringVar(&vectorStr, "vector", "", "comma-separated query vector (required)")
	cmd.Flags().IntVar(&topK, "topk", 10, "number of results to return")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "distance threshold; 0 disables filtering")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("vector")
	return cmd
}

func parseVector(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %q: %w", f, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func newDeleteCmd() *cobra.Command {
	var path, ids string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "tombstone heap ids (bulk delete)",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			targets := map[uint64]bool{}
			for _, f := range strings.Split(ids, ",") {
				v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
				if err != nil {
					return fmt.Errorf("parsing id %q: %w", f, err)
				}
				targets[v] = true
			}

			result, err := idx.BulkDelete(func(heapPtr uint64) bool { return targets[heapPtr] })
			if err != nil {
				return err
			}
			fmt.Printf("tombstoned %d tuples\n", result.TuplesDeleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.Flags().StringVar(&ids, "ids", "", "comma-separated heap ids to delete (required)")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("ids")
	return cmd
}

func newVacuumCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "vacuum",
		Short: "reclaim wholly-tombstoned overflow pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			result, err := idx.Vacuum()
			if err != nil {
				return err
			}
			fmt.Printf("freed %d pages\n", result.PagesFreed)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print basic index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()
			fmt.Printf("dims: %d\n", idx.Dims())
			fmt.Printf("free pages: %d\n", idx.FreePageCount())
			for t, n := range idx.PageTypeCounts() {
				fmt.Printf("pages[%s]: %d\n", t, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "verify bucket/overflow structure and page checksums",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := hnsw.Open(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			errs := idx.CheckIntegrity()
			if len(errs) == 0 {
				fmt.Println("ok")
				return nil
			}
			for _, e := range errs {
				fmt.Println(e.String())
			}
			return fmt.Errorf("%d integrity error(s) found", len(errs))
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "index file path (required)")
	cmd.MarkFlagRequired("path")
	return cmd
}
