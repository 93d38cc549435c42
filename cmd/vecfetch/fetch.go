package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecfetch"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		cacheDir  string
		sched     string
		byteRange string
		out       string
		interval  time.Duration
		build     bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <source>",
		Short: "Download a source (or a byte range of it) into the verified cache",
		Long: "Sources are local paths, file://, http(s)://, s3:// or minio:// URLs. " +
			"The reference is read from <source>.mref unless --build is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := *a.cfg
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if sched != "" {
				cfg.Scheduler = sched
			}
			if build {
				cfg.BuildReference = true
			}
			opts, err := cfg.ChannelOptions()
			if err != nil {
				return err
			}

			store, name, err := openSource(ctx, &cfg, args[0])
			if err != nil {
				return err
			}
			ch, err := vecfetch.OpenStore(ctx, store, name, cfg.CacheDir, opts...)
			if err != nil {
				return err
			}
			defer ch.Close()

			off, length, err := parseRange(byteRange, ch.Size())
			if err != nil {
				return err
			}

			start := time.Now()
			p := ch.Prebuffer(ctx, off, length)
			if err := waitWithProgress(cmd.ErrOrStderr(), p, interval); err != nil {
				return err
			}
			stats := ch.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d chunks cached, fetched %s in %d requests (%s)\n",
				ch.Path(), stats.ValidLeaves, stats.Leaves,
				humanize.IBytes(uint64(stats.FetchedBytes)), stats.Fetches,
				time.Since(start).Round(time.Millisecond))

			if out == "" {
				return ch.Force(true)
			}
			return writeRange(ch.ReaderAt(ctx), out, off, length)
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "cache directory (overrides config)")
	cmd.Flags().StringVar(&sched, "scheduler", "", "conservative, default, aggressive or adaptive")
	cmd.Flags().StringVar(&byteRange, "range", "", "byte range <offset>:<length>, sizes like 4MiB allowed (default whole file)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "also copy the range to this file ('-' for stdout)")
	cmd.Flags().DurationVar(&interval, "progress", time.Second, "progress report interval, 0 disables")
	cmd.Flags().BoolVar(&build, "build", false, "build the reference from the source when none is published")
	return cmd
}

// parseRange parses "<offset>:<length>". An empty string or empty length
// selects through the end of the content.
func parseRange(s string, size int64) (off, length int64, err error) {
	if s == "" {
		return 0, size, nil
	}
	offStr, lenStr, _ := strings.Cut(s, ":")
	o, err := humanize.ParseBytes(offStr)
	if err != nil {
		return 0, 0, fmt.Errorf("range offset: %w", err)
	}
	off = int64(o)
	if off > size {
		return 0, 0, fmt.Errorf("range offset %d beyond size %d", off, size)
	}
	length = size - off
	if lenStr != "" {
		l, err := humanize.ParseBytes(lenStr)
		if err != nil {
			return 0, 0, fmt.Errorf("range length: %w", err)
		}
		length = min(int64(l), size-off)
	}
	return off, length, nil
}

func waitWithProgress(w io.Writer, p *vecfetch.Prebuffer, interval time.Duration) error {
	if interval <= 0 {
		<-p.Done()
		return p.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			return p.Err()
		case <-ticker.C:
			current, total := p.Progress()
			fmt.Fprintf(w, "%d/%d chunks (%.1f%%)\n", current, total, p.Percent())
		}
	}
}

func writeRange(r io.ReaderAt, path string, off, length int64) (err error) {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, f.Close()) }()
		w = f
	}
	_, err = io.Copy(w, io.NewSectionReader(r, off, length))
	return err
}
