package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecfetch"
	"github.com/hupe1980/vecfetch/merkle"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve a directory over HTTP with range requests and on-demand references",
		Long: "Files are served with byte-range support. A request for <name>.mref " +
			"returns the published artifact or builds one from <name> on first use.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := newServer(args[0], a.cfg, a.cfg.Logger())
			srv := &http.Server{
				Addr:              addr,
				Handler:           s.router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", args[0], addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// server publishes the files below root.
type server struct {
	root   string
	cfg    *Config
	logger *vecfetch.Logger

	builds singleflight.Group
	mu     sync.Mutex
	refs   map[string]builtRef
}

type builtRef struct {
	data    []byte
	root    string
	modTime time.Time
}

func newServer(root string, cfg *Config, logger *vecfetch.Logger) *server {
	return &server{root: root, cfg: cfg, logger: logger, refs: make(map[string]builtRef)}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/{name:.+\\.mref}", s.handleReference).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{name:.+}", s.handleFile).Methods(http.MethodGet, http.MethodHead)
	return r
}

// resolve maps a request name to a file below root.
func (s *server) resolve(name string) string {
	clean := path.Clean("/" + name)
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *server) handleFile(w http.ResponseWriter, r *http.Request) {
	p := s.resolve(mux.Vars(r)["name"])
	f, err := os.Open(p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("ETag", fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *server) handleReference(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p := s.resolve(name)
	if _, err := os.Stat(p); err == nil {
		s.handleFile(w, r)
		return
	}

	source := strings.TrimSuffix(p, merkle.ReferenceExt)
	ref, err := s.buildReference(r.Context(), source)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", `"`+ref.root+`"`)
	http.ServeContent(w, r, path.Base(name), ref.modTime, bytes.NewReader(ref.data))
}

// buildReference returns the encoded reference of source, rebuilding it when
// the file changed since the last build.
func (s *server) buildReference(ctx context.Context, source string) (builtRef, error) {
	info, err := os.Stat(source)
	if err != nil {
		return builtRef{}, err
	}
	if info.IsDir() {
		return builtRef{}, fs.ErrNotExist
	}

	s.mu.Lock()
	cached, ok := s.refs[source]
	s.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached, nil
	}

	v, err, _ := s.builds.Do(source, func() (any, error) {
		start := time.Now()
		ref, err := buildReference(context.WithoutCancel(ctx), s.cfg, source, nil)
		if err != nil {
			return nil, err
		}
		cd, _ := s.cfg.codec()
		data, err := ref.Encode(cd)
		if err != nil {
			return nil, err
		}
		built := builtRef{data: data, root: ref.Root().String(), modTime: info.ModTime()}
		s.mu.Lock()
		s.refs[source] = built
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "reference built", "source", source, "root", ref.Root().String(), "duration", time.Since(start))
		return built, nil
	})
	if err != nil {
		return builtRef{}, err
	}
	return v.(builtRef), nil
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
