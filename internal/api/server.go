package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/config"
	"github.com/banshee-data/viewfactor/internal/fixtures"
	"github.com/banshee-data/viewfactor/internal/httputil"
	"github.com/banshee-data/viewfactor/internal/metrics"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/timeutil"
	"github.com/banshee-data/viewfactor/internal/trajectory"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
	"tailscale.com/tsweb"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server serves simulations over HTTP. The fixture store is optional.
type Server struct {
	defaults *config.SimulationConfig
	loader   *trajectory.Loader
	store    *fixtures.Store
	runner   *simulator.Runner
}

func NewServer(defaults *config.SimulationConfig, loader *trajectory.Loader, store *fixtures.Store) *Server {
	if defaults == nil {
		defaults = config.EmptySimulationConfig()
	}
	return &Server{
		defaults: defaults,
		loader:   loader,
		store:    store,
		runner:   simulator.NewRunner(),
	}
}

// Runner returns the runner behind /api/simulate/live.
func (s *Server) Runner() *simulator.Runner { return s.runner }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return loggingMiddleware(timeutil.RealClock{}, next)
}

func loggingMiddleware(clock timeutil.Clock, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(clock.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API handlers. Paths are relative to the /api mount.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/simulate", s.simulate)
	mux.HandleFunc("/simulate/live", s.simulateLive)
	mux.HandleFunc("/simulate/latest", s.latest)
	mux.HandleFunc("/models", s.listModels)
	mux.HandleFunc("/fixtures", s.listFixtures)
	mux.HandleFunc("/trajectories", s.listTrajectories)
	mux.HandleFunc("/trajectories/{name}", s.showTrajectory)
	return mux
}

// AttachAdminRoutes adds the runner counters to the /debug/ pages.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("runner", "Live simulation runner counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.runner.Stats())
	})
}

// SimulateRequest names the trajectory to simulate, either inline or as a
// gesture file in the data directory, and overrides for the server's
// default configuration.
type SimulateRequest struct {
	Trajectory simulator.Trajectory     `json:"trajectory,omitempty"`
	Gesture    string                   `json:"gesture,omitempty"`
	Config     *config.SimulationConfig `json:"config,omitempty"`
}

// SimulateResponse is a simulation result with its trajectory summary.
type SimulateResponse struct {
	Seq         uint64     `json:"seq,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	*simulator.Result
	Summary simulator.Summary `json:"summary"`
}

func newSimulateResponse(res *simulator.Result) SimulateResponse {
	return SimulateResponse{Result: res, Summary: res.Summary()}
}

// requestError carries the status a malformed request should get.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (simulator.Config, simulator.Trajectory, error) {
	var req SimulateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		return simulator.Config{}, nil, &requestError{http.StatusBadRequest, err.Error()}
	}
	if (req.Gesture == "") == (req.Trajectory == nil) {
		return simulator.Config{}, nil, &requestError{http.StatusBadRequest, "exactly one of trajectory or gesture is required"}
	}

	cfg := s.defaults
	traj := req.Trajectory
	if req.Gesture != "" {
		g, err := s.loadGesture(req.Gesture)
		if err != nil {
			return simulator.Config{}, nil, err
		}
		if g.LightSource != nil {
			cfg = cfg.WithLightSource(g.Light())
		}
		traj = g.Trajectory()
	}
	cfg = cfg.Merge(req.Config)
	if err := cfg.Validate(); err != nil {
		return simulator.Config{}, nil, &requestError{http.StatusBadRequest, fmt.Sprintf("invalid config: %v", err)}
	}
	simCfg := cfg.ToSimulatorConfig()
	if err := simCfg.Validate(); err != nil {
		return simulator.Config{}, nil, &requestError{http.StatusBadRequest, fmt.Sprintf("invalid config: %v", err)}
	}
	return simCfg, traj, nil
}

func (s *Server) loadGesture(name string) (*trajectory.Gesture, error) {
	if s.loader == nil {
		return nil, &requestError{http.StatusNotFound, "no trajectory directory configured"}
	}
	path, err := s.loader.Path(name)
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, err.Error()}
	}
	if !s.loader.FS.Exists(path) {
		return nil, &requestError{http.StatusNotFound, fmt.Sprintf("trajectory %q not found", name)}
	}
	g, err := s.loader.LoadFile(path)
	if err != nil {
		return nil, &requestError{http.StatusUnprocessableEntity, err.Error()}
	}
	return g, nil
}

// writeError maps resolution and simulation errors to a status code.
func writeError(w http.ResponseWriter, err error) {
	var (
		reqErr *requestError
		calErr *calibration.CalibrationError
		calIn  *calibration.InputError
		metIn  *metrics.InputError
	)
	switch {
	case errors.As(err, &reqErr) && reqErr.status == http.StatusBadRequest:
		httputil.BadRequest(w, reqErr.msg)
	case errors.As(err, &reqErr):
		httputil.WriteJSONError(w, reqErr.status, reqErr.msg)
	case errors.Is(err, simulator.ErrSuperseded):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, simulator.ErrMeasuredPowerMissing),
		errors.As(err, &calErr), errors.As(err, &calIn), errors.As(err, &metIn):
		httputil.UnprocessableEntity(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		monitoring.Logf("simulation failed: %v", err)
		httputil.InternalServerError(w, "simulation failed")
	}
}

func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg, traj, err := s.resolve(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := simulator.Simulate(r.Context(), cfg, traj)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, newSimulateResponse(res))
}

func (s *Server) simulateLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	cfg, traj, err := s.resolve(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	seq, res, err := s.runner.Submit(r.Context(), cfg, traj)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := newSimulateResponse(res)
	resp.Seq = seq
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p := s.runner.Latest()
	if p == nil {
		httputil.NotFound(w, "no simulation has been published")
		return
	}
	resp := newSimulateResponse(p.Result)
	resp.Seq = p.Seq
	at := p.PublishedAt
	resp.PublishedAt = &at
	httputil.WriteJSONOK(w, resp)
}

// ModelInfo describes one selectable view-factor model.
type ModelInfo struct {
	Name              string `json:"name"`
	DefaultResolution struct {
		NR   int `json:"n_r"`
		NPhi int `json:"n_phi"`
	} `json:"default_resolution"`
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var models []ModelInfo
	for _, k := range viewfactor.Kinds() {
		m := ModelInfo{Name: k.String()}
		res := viewfactor.DefaultResolution(k)
		m.DefaultResolution.NR, m.DefaultResolution.NPhi = res.NR, res.NPhi
		models = append(models, m)
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"models":               models,
		"calibration_policies": calibration.Policies(),
	})
}

func (s *Server) listFixtures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "no fixture database configured")
		return
	}
	sums, err := s.store.Summary(r.Context())
	if err != nil {
		monitoring.Logf("failed to read fixtures: %v", err)
		httputil.InternalServerError(w, "failed to read fixtures")
		return
	}
	httputil.WriteJSONOK(w, sums)
}

func (s *Server) listTrajectories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.loader == nil {
		httputil.WriteJSONOK(w, []string{})
		return
	}
	names, err := s.loader.List()
	if err != nil {
		httputil.InternalServerError(w, "failed to list trajectories")
		return
	}
	httputil.WriteJSONOK(w, names)
}

func (s *Server) showTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	g, err := s.loadGesture(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"name":          g.Name,
		"sampling_rate": g.Rate(),
		"light":         g.Light(),
		"samples":       g.Trajectory(),
	})
}
