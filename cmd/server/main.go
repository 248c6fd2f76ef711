// Command server serves simulations, the gesture library and the fixture
// database over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/viewfactor/internal/api"
	"github.com/banshee-data/viewfactor/internal/config"
	"github.com/banshee-data/viewfactor/internal/fixtures"
	"github.com/banshee-data/viewfactor/internal/trajectory"
	"github.com/banshee-data/viewfactor/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dataDir     = flag.String("data", "", "Directory of gesture JSON files served under /api/trajectories")
	dbPath      = flag.String("db", "", "Fixture database (optional)")
	configPath  = flag.String("config", "", "Default simulation config JSON (default: built-in defaults)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("server %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	defaults := config.EmptySimulationConfig()
	if *configPath != "" {
		var err error
		defaults, err = config.LoadSimulationConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	var loader *trajectory.Loader
	if *dataDir != "" {
		loader = trajectory.NewLoader(*dataDir)
	}

	var store *fixtures.Store
	if *dbPath != "" {
		var err error
		store, err = fixtures.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open fixture database: %v", err)
		}
		defer store.Close()
	}

	srv := api.NewServer(defaults, loader, store)
	defer srv.Runner().Stop()

	mux, err := newMux(srv, store)
	if err != nil {
		log.Fatalf("failed to mount routes: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		srv.Runner().Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// newMux mounts the API under /api/ and the admin pages under /debug/.
func newMux(srv *api.Server, store *fixtures.Store) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	srv.AttachAdminRoutes(mux)
	mux.Handle("/api/", http.StripPrefix("/api", srv.ServeMux()))
	return mux, nil
}
