// Command serve previews a dev/bench directory (data.js plus index.html)
// the way GitHub Pages would publish it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/report"
)

// ensureDashboard writes index.html next to data.js when it is missing
func ensureDashboard(dir, title string, log logrus.FieldLogger) error {
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
		return nil
	}
	dataFile := filepath.Join(dir, "data.js")
	ds, err := dataset.LoadFile(dataFile)
	if err != nil {
		return err
	}
	path, err := report.WriteDashboard(dataFile, title, ds)
	if err != nil {
		return err
	}
	log.WithField("path", path).Info("Generated missing dashboard")
	return nil
}

func newRouter(dir string, log logrus.FieldLogger) *mux.Router {
	r := mux.NewRouter()

	// data.js changes on every push
	r.HandleFunc("/data.js", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Content-Type", "application/javascript")
		http.ServeFile(w, req, filepath.Join(dir, "data.js"))
	}).Methods("GET", "HEAD")

	r.PathPrefix("/").Handler(http.FileServer(http.Dir(dir)))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			log.WithFields(logrus.Fields{
				"method":   req.Method,
				"path":     req.URL.Path,
				"duration": time.Since(start),
			}).Debug("Served")
		})
	})
	return r
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	var (
		addr  string
		dir   string
		title string
	)
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve a dev/bench directory locally",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("benchmark directory does not exist: %s", dir)
			}
			if err := ensureDashboard(dir, title, log); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           newRouter(dir, log),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Infof("Serving %s on http://localhost%s", dir, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Listen address")
	cmd.Flags().StringVar(&dir, "dir", "dev/bench", "Directory holding data.js")
	cmd.Flags().StringVar(&title, "title", "Benchmark", "Dashboard title when index.html has to be generated")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("serve failed")
		stop()
		os.Exit(1)
	}
}
