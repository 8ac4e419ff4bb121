package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/toastate/toastblog/internal/bundler"
	"github.com/toastate/toastblog/internal/tlogger"
	"github.com/toastate/toastblog/internal/watcher"
	"github.com/toastate/toastblog/pkg/builder"
	"golang.org/x/sync/errgroup"
)

//go:embed livereload.html
var liveReloadScript []byte

const liveReloadPath = "/__internal/livereload"

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
		w.WriteHeader(500)
	},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Options struct {
	// BuildDir is the output tree being served.
	BuildDir    string
	Port        int
	Override404 string
	// Builder, when set, builds before serving and rebuilds on change.
	Builder *builder.Builder
	Fs      afero.Fs
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

type Server struct {
	buildDir     string
	port         int
	override404  string
	fs           afero.Fs
	metrics      http.Handler
	reloadBroker *Broker
	buildtool    *builder.Builder
}

func (s *Server) TriggerReload() {
	s.reloadBroker.Publish(struct{}{})
}

func NewServer(opts Options) *Server {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	override404 := opts.Override404
	if override404 != "" && !strings.HasPrefix(override404, "/") {
		override404 = "/" + override404
	}
	return &Server{
		buildDir:     opts.BuildDir,
		port:         opts.Port,
		override404:  override404,
		fs:           fs,
		metrics:      opts.Metrics,
		reloadBroker: newBroker(),
		buildtool:    opts.Builder,
	}
}

// Handler routes the live reload socket, the metrics and the output tree.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(liveReloadPath, s.livereloadHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.PathPrefix("/").HandlerFunc(s.fileServer())
	return r
}

// Start serves until ctx is done. With withBuilder the site is built first,
// then rebuilt on every change and the open pages reloaded.
func (s *Server) Start(ctx context.Context, withBuilder bool) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.reloadBroker.Start(ctx)
		return nil
	})

	if withBuilder && s.buildtool != nil {
		if _, err := s.buildtool.Build(ctx); err != nil {
			return err
		}

		updates, err := watcher.StartWatcher(ctx, s.buildtool.Config().IgnoreFiles, s.buildtool.WatchRoots()...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			watcher.Dispatch(ctx, updates, s.rebuild)
			return nil
		})

		if err := s.serveHot(ctx, g); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		// We use println here so the address can be copied or opened directly from the terminal
		fmt.Println("Listening on http://localhost:" + fmt.Sprint(s.port))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	return g.Wait()
}

func (s *Server) rebuild(ctx context.Context, p string) error {
	kind, err := s.buildtool.Rebuild(ctx, p)
	if err != nil {
		return err
	}
	if kind != builder.RebuildNone {
		s.TriggerReload()
	}
	return nil
}

// serveHot starts the bundler's own dev server for the apps of a hot build.
// Apps sharing a port are served by the first one only.
func (s *Server) serveHot(ctx context.Context, g *errgroup.Group) error {
	apps, err := s.buildtool.Apps()
	if err != nil {
		return err
	}
	used := map[int]string{}
	for _, app := range apps {
		if app.Stage() != bundler.HotStage || app.Bundle.File == "" {
			continue
		}
		if other, ok := used[app.Bundle.Port]; ok {
			tlogger.Warn("msg", "Port already served by another app", "app", app.Name, "other", other, "port", app.Bundle.Port)
			continue
		}
		used[app.Bundle.Port] = app.Name
		app := app
		g.Go(func() error {
			return bundler.Serve(ctx, app.Bundle, app.OutputPath, app.PublicPath)
		})
	}
	return nil
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	w.WriteHeader(500)
	w.Write([]byte("Internal error: " + msg + ": " + err.Error()))
}

// lookup finds the file served for upath: the file itself, then upath.html,
// then upath/index.html.
func (s *Server) lookup(upath string) (string, bool, error) {
	const indexPage = "index.html"

	fullName := filepath.Join(s.buildDir, filepath.FromSlash(path.Clean(upath)))
	candidates := []string{fullName, fullName + ".html", filepath.Join(fullName, indexPage)}
	if strings.HasSuffix(upath, "/") {
		candidates = []string{filepath.Join(fullName, indexPage)}
	}

	for _, c := range candidates {
		info, err := s.fs.Stat(c)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", false, err
		}
		if !info.IsDir() {
			return c, true, nil
		}
	}
	return "", false, nil
}

func (s *Server) fileServer() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		upath := r.URL.Path
		if !strings.HasPrefix(upath, "/") {
			upath = "/" + upath
		}

		fullName, valid, err := s.lookup(upath)
		if err != nil {
			s.internalError(w, "can't open file", err)
			return
		}
		if !valid && s.override404 != "" && upath != s.override404 {
			fullName, valid, err = s.lookup(s.override404)
			if err != nil {
				s.internalError(w, "can't open file", err)
				return
			}
		}
		if !valid {
			w.WriteHeader(404)
			w.Write([]byte("404 page not found"))
			return
		}

		content, err := s.fs.Open(fullName)
		if err != nil {
			s.internalError(w, "can't open file", err)
			return
		}
		defer content.Close()

		ctype := mime.TypeByExtension(filepath.Ext(fullName))
		if ctype == "" {
			// read a chunk to decide between utf-8 text and binary
			var buf [512]byte
			n, _ := io.ReadFull(content, buf[:])
			ctype = http.DetectContentType(buf[:n])
			_, err := content.Seek(0, io.SeekStart) // rewind to output whole file
			if err != nil {
				s.internalError(w, "can't seek file", err)
				return
			}
		}
		w.Header().Set("Content-Type", ctype)

		if !strings.HasPrefix(ctype, "text/html") {
			io.Copy(w, content)
			return
		}

		page, err := io.ReadAll(content)
		if err != nil {
			s.internalError(w, "can't read file", err)
			return
		}
		_, err = w.Write(injectLiveReload(page))
		if err != nil {
			tlogger.Error("msg", "could not live reload", "error", err)
		}
	}
}

// injectLiveReload places the reload script before </body>, or at the end of
// pages without one.
func injectLiveReload(page []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return append(page, liveReloadScript...)
	}
	out := make([]byte, 0, len(page)+len(liveReloadScript))
	out = append(out, page[:i]...)
	out = append(out, liveReloadScript...)
	return append(out, page[i:]...)
}

func (s *Server) livereloadHandler(w http.ResponseWriter, r *http.Request) {
	tlogger.Debug("msg", "WS Established")

	waitCh := s.reloadBroker.Subscribe()
	defer s.reloadBroker.Unsubscribe(waitCh)

	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	select {
	case <-waitCh:
	case <-s.reloadBroker.Done():
		return
	}
	err = c.WriteMessage(websocket.TextMessage, []byte("reload"))
	if err != nil {
		tlogger.Warn("msg", "Reload socket error", "error", err)
	}
}
