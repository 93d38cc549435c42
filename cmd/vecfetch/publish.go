package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/merkle"
)

func newPublishCmd(a *app) *cobra.Command {
	var (
		force bool
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "publish <file> <destination>",
		Short: "Upload a dataset file and its reference artifact",
		Long: "The destination names the target object, e.g. s3://bucket/sift/base.fvec " +
			"or /srv/datasets/base.fvec. The data is uploaded before <name>.mref so a " +
			"published reference always describes complete content. Stores with " +
			"conditional writes refuse to replace a different reference unless --force is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var progress io.Writer
			if !quiet {
				progress = cmd.ErrOrStderr()
			}
			ref, err := buildReference(ctx, a.cfg, args[0], progress)
			if err != nil {
				return err
			}

			store, name, err := openSource(ctx, a.cfg, args[1])
			if err != nil {
				return err
			}
			refName := name + merkle.ReferenceExt
			if !force {
				published, err := loadPublished(ctx, store, refName)
				switch {
				case err == nil && published.Equal(ref):
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (already published)\n", ref.Root(), args[1])
					return nil
				case err == nil:
					return fmt.Errorf("%s: a different reference (root %s) is already published", refName, published.Root())
				case !errors.Is(err, blobstore.ErrNotFound):
					return err
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := store.Put(ctx, name, data); err != nil {
				return fmt.Errorf("upload %s: %w", name, err)
			}

			cd, _ := a.cfg.codec()
			encoded, err := ref.Encode(cd)
			if err != nil {
				return err
			}
			if err := publishReference(ctx, store, refName, ref, encoded, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s)\n", ref.Root(), args[1], humanize.IBytes(uint64(len(data))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace a different published reference")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

// publishReference stores encoded under name. With an ExclusivePutter a
// concurrent publisher that got there first is accepted only if it
// published the same tree.
func publishReference(ctx context.Context, store blobstore.BlobStore, name string, ref *merkle.Reference, encoded []byte, force bool) error {
	ep, ok := store.(blobstore.ExclusivePutter)
	if force || !ok {
		return store.Put(ctx, name, encoded)
	}

	err := ep.PutIfNotExists(ctx, name, encoded)
	if !errors.Is(err, blobstore.ErrExists) {
		return err
	}
	published, err := loadPublished(ctx, store, name)
	if err != nil {
		return err
	}
	if !published.Equal(ref) {
		return fmt.Errorf("%s: a different reference (root %s) is already published", name, published.Root())
	}
	return nil
}

func loadPublished(ctx context.Context, store blobstore.BlobStore, name string) (*merkle.Reference, error) {
	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	ref, err := merkle.DecodeReference(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return ref, nil
}
