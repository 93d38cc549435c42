package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecfetch/internal/hash"
	"github.com/hupe1980/vecfetch/internal/resource"
	"github.com/hupe1980/vecfetch/merkle"
)

func newRefCmd(a *app) *cobra.Command {
	refCmd := &cobra.Command{
		Use:   "ref",
		Short: "Build, inspect and compare merkle reference artifacts",
	}
	refCmd.AddCommand(
		newRefBuildCmd(a),
		newRefInspectCmd(),
		newRefDiffCmd(),
		newRefVerifyCmd(a),
	)
	return refCmd
}

func newRefBuildCmd(a *app) *cobra.Command {
	var (
		out      string
		chunk    string
		alg      string
		compress string
		ioLimit  string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Hash a file into a reference artifact (<file>.mref)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if chunk != "" {
				cfg.ChunkSize = chunk
			}
			if alg != "" {
				cfg.Hash = alg
			}
			if compress != "" {
				cfg.Compression = compress
			}
			if ioLimit != "" {
				cfg.IOLimit = ioLimit
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if out == "" {
				out = args[0] + merkle.ReferenceExt
			}

			var progress io.Writer
			if !quiet {
				progress = cmd.ErrOrStderr()
			}
			ref, err := buildReference(cmd.Context(), &cfg, args[0], progress)
			if err != nil {
				return err
			}
			cd, _ := cfg.codec()
			if err := ref.Save(out, func(o *merkle.SaveOptions) { o.Codec = cd }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ref.Root(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default <file>.mref)")
	cmd.Flags().StringVar(&chunk, "chunk-size", "", "leaf size, a power of two (e.g. 1MiB)")
	cmd.Flags().StringVar(&alg, "hash", "", "digest: sha256 or blake3")
	cmd.Flags().StringVar(&compress, "compression", "", "artifact codec: none, zstd, lz4")
	cmd.Flags().StringVar(&ioLimit, "io-limit", "", "read throughput limit per second (e.g. 200MB)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

// buildReference hashes path with the configured geometry. A configured IO
// limit streams the file sequentially through the rate limiter.
func buildReference(ctx context.Context, cfg *Config, path string, progress io.Writer) (*merkle.Reference, error) {
	chunk, err := cfg.chunkSize()
	if err != nil {
		return nil, err
	}
	alg, err := hash.ParseAlgorithm(cfg.Hash)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.ioLimit()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()

	var mu sync.Mutex
	lastTenth := -1
	opts := func(o *merkle.BuildOptions) {
		o.Algorithm = alg
		if progress == nil {
			return
		}
		o.OnProgress = func(p merkle.Progress) {
			mu.Lock()
			defer mu.Unlock()
			tenth := int(p.Fraction() * 10)
			if tenth == lastTenth {
				return
			}
			lastTenth = tenth
			done := min(int64(p.Processed)*chunk, size)
			fmt.Fprintf(progress, "hashing %s: %s / %s (%.0f%%)\n", path,
				humanize.IBytes(uint64(done)), humanize.IBytes(uint64(size)), 100*p.Fraction())
		}
	}

	if limit <= 0 {
		return merkle.BuildFromFile(ctx, path, chunk, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: limit})
	return merkle.BuildFromReader(ctx, resource.NewRateLimitedReader(ctx, f, rc), size, chunk, opts)
}

func newRefInspectCmd() *cobra.Command {
	var leaves bool
	cmd := &cobra.Command{
		Use:   "inspect <file.mref>",
		Short: "Print the geometry and hashes of a reference artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := merkle.LoadReference(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			shape := ref.Shape()
			fmt.Fprintf(w, "content:   %s (%d bytes)\n", humanize.IBytes(uint64(shape.ContentSize())), shape.ContentSize())
			fmt.Fprintf(w, "chunk:     %s\n", humanize.IBytes(uint64(shape.ChunkSize())))
			fmt.Fprintf(w, "leaves:    %d (capacity %d, %d nodes)\n", shape.LeafCount(), shape.CapLeaf(), shape.NodeCount())
			fmt.Fprintf(w, "algorithm: %s\n", ref.Algorithm())
			fmt.Fprintf(w, "root:      %s\n", ref.Root())
			if leaves {
				for leaf := range shape.LeafCount() {
					h, _ := ref.LeafHash(leaf)
					start, n := shape.ChunkBoundary(leaf)
					fmt.Fprintf(w, "%8d  %12d  %10d  %s\n", leaf, start, n, h)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&leaves, "leaves", false, "list every leaf hash")
	return cmd
}

func newRefDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <a.mref> <b.mref>",
		Short: "List chunks whose hashes differ between two references",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := merkle.LoadReference(args[0])
			if err != nil {
				return err
			}
			b, err := merkle.LoadReference(args[1])
			if err != nil {
				return err
			}
			mismatched, err := a.MismatchedChunks(b)
			if err != nil {
				return err
			}
			printMismatches(cmd.OutOrStdout(), a.Shape(), mismatched)
			if len(mismatched) > 0 {
				return fmt.Errorf("%d of %d chunks differ", len(mismatched), a.Shape().LeafCount())
			}
			return nil
		},
	}
}

func newRefVerifyCmd(a *app) *cobra.Command {
	var refPath string
	cmd := &cobra.Command{
		Use:   "verify <file>...",
		Short: "Check files against their references and print corrupt chunks",
		Long: "Each file is hashed with the geometry of its reference (<file>.mref " +
			"unless --ref is given) and compared chunk by chunk.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refPath != "" && len(args) > 1 {
				return fmt.Errorf("--ref applies to a single file")
			}

			results := make([][]int, len(args))
			shapes := make([]merkle.Shape, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(a.cfg.MaxConcurrentFetches, 1))
			for i, file := range args {
				g.Go(func() error {
					p := refPath
					if p == "" {
						p = file + merkle.ReferenceExt
					}
					mismatched, shape, err := verifyFile(ctx, file, p)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					results[i], shapes[i] = mismatched, shape
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			failed := 0
			for i, file := range args {
				if len(results[i]) == 0 {
					fmt.Fprintf(w, "%s: OK\n", file)
					continue
				}
				failed++
				fmt.Fprintf(w, "%s: %d corrupt chunks\n", file, len(results[i]))
				printMismatches(w, shapes[i], results[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refPath, "ref", "", "reference artifact (default <file>.mref)")
	return cmd
}

// verifyFile rebuilds the reference of file with the geometry of refPath and
// returns the mismatching leaves.
func verifyFile(ctx context.Context, file, refPath string) ([]int, merkle.Shape, error) {
	want, err := merkle.LoadReference(refPath)
	if err != nil {
		return nil, merkle.Shape{}, err
	}
	got, err := merkle.BuildFromFile(ctx, file, want.Shape().ChunkSize(), func(o *merkle.BuildOptions) {
		o.Algorithm = want.Algorithm()
	})
	if err != nil {
		return nil, merkle.Shape{}, err
	}
	if got.Shape() != want.Shape() {
		return nil, merkle.Shape{}, fmt.Errorf("size %d differs from reference %d", got.Shape().ContentSize(), want.Shape().ContentSize())
	}
	mismatched, err := want.MismatchedChunks(got)
	return mismatched, want.Shape(), err
}

func printMismatches(w io.Writer, shape merkle.Shape, leaves []int) {
	for _, leaf := range leaves {
		start, n := shape.ChunkBoundary(leaf)
		fmt.Fprintf(w, "  chunk %d: bytes [%d, %d)\n", leaf, start, start+n)
	}
}
