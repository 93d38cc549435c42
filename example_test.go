package vecfetch_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecfetch"
	"github.com/hupe1980/vecfetch/blobstore"
	"github.com/hupe1980/vecfetch/merkle"
	"github.com/hupe1980/vecfetch/scheduler"
)

// Example_openStore demonstrates reading a published dataset through a
// local cache.
func Example_openStore() {
	ctx := context.Background()

	// Publish a source and its reference artifact.
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i)
	}
	ref, err := merkle.BuildFromBytes(data, 4096)
	if err != nil {
		log.Fatal(err)
	}
	encoded, err := ref.MarshalBinary()
	if err != nil {
		log.Fatal(err)
	}
	store := blobstore.NewMemoryStore()
	_ = store.Put(ctx, "base.fvec", data)
	_ = store.Put(ctx, "base.fvec"+merkle.ReferenceExt, encoded)

	dir, _ := os.MkdirTemp("", "vecfetch-example")
	defer os.RemoveAll(dir)

	ch, err := vecfetch.OpenStore(ctx, store, "base.fvec", dir)
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()

	buf := make([]byte, 4)
	if _, err := ch.ReadAt(ctx, buf, 5000); err != nil {
		log.Fatal(err)
	}
	fmt.Println(buf, ch.Stats().ValidLeaves, "of", ch.Stats().Leaves)
	// Output: [136 137 138 139] 1 of 3
}

// Example_prebuffer demonstrates warming a whole file with an aggressive
// scheduler and a reference built from the source.
func Example_prebuffer() {
	ctx := context.Background()

	store := blobstore.NewMemoryStore()
	_ = store.Put(ctx, "query.fvec", make([]byte, 64<<10))

	dir, _ := os.MkdirTemp("", "vecfetch-example")
	defer os.RemoveAll(dir)

	t, err := blobstore.OpenTransport(ctx, store, "query.fvec")
	if err != nil {
		log.Fatal(err)
	}
	ch, err := vecfetch.Open(ctx, t, filepath.Join(dir, "query.fvec"),
		vecfetch.WithBuildReference(true),
		vecfetch.WithChunkSize(16<<10),
		vecfetch.WithScheduler(scheduler.Aggressive{}),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer ch.Close()

	p := ch.Prebuffer(ctx, 0, ch.Size())
	if err := p.Wait(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%.0f%% complete=%v\n", p.Percent(), ch.IsComplete())
	// Output: 100% complete=true
}
