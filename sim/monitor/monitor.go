// Package monitor exposes a running simulation over HTTP so it can be
// inspected and controlled from a browser or script.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/swizzle-sim/sim"
	"github.com/inference-sim/swizzle-sim/sim/playback"
)

// Monitor serves snapshots of a simulation and accepts control commands.
// Every command goes through the Player, so HTTP control, timed playback and
// CLI stepping all mutate the simulator the same way.
type Monitor struct {
	player     *playback.Player
	portNumber int
}

// NewMonitor creates a Monitor for the given player.
func NewMonitor(p *playback.Player) *Monitor {
	return &Monitor{player: p}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 select
// a random free port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		logrus.Warnf("Port number %d is not allowed for the monitor; using a random port instead", portNumber)
		portNumber = 0
	}
	m.portNumber = portNumber
	return m
}

// StateResponse is the body of GET /api/state and of every control command.
type StateResponse struct {
	sim.Snapshot
	Playing bool    `json:"playing"`
	Speed   float64 `json:"speed"`
}

// ScheduleResponse is the body of GET /api/schedule.
type ScheduleResponse struct {
	NumPidM  int             `json:"num_pid_m"`
	NumPidN  int             `json:"num_pid_n"`
	Mode     sim.Mode        `json:"mode"`
	Schedule []sim.TileCoord `json:"schedule"`
	Batches  int             `json:"batches"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the router serving the API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", m.state).Methods(http.MethodGet)
	api.HandleFunc("/schedule", m.schedule).Methods(http.MethodGet)
	api.HandleFunc("/metrics", m.metrics).Methods(http.MethodGet)
	api.HandleFunc("/step", m.step).Methods(http.MethodPost)
	api.HandleFunc("/step/{count:[0-9]+}", m.step).Methods(http.MethodPost)
	api.HandleFunc("/reset", m.reset).Methods(http.MethodPost)
	api.HandleFunc("/play", m.play).Methods(http.MethodPost)
	api.HandleFunc("/pause", m.pause).Methods(http.MethodPost)
	api.HandleFunc("/speed", m.speed).Methods(http.MethodPost)
	api.HandleFunc("/config", m.config).Methods(http.MethodGet, http.MethodPost)
	return r
}

// StartServer listens on the configured port and serves until ctx is
// cancelled. It returns the base URL once the listener is ready.
func (m *Monitor) StartServer(ctx context.Context) (string, <-chan error, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}
	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", nil, fmt.Errorf("monitor listen: %w", err)
	}
	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	logrus.Infof("Monitoring simulation with %s", url)

	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	done := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return url, done, nil
}

func (m *Monitor) currentState() StateResponse {
	return StateResponse{
		Snapshot: m.player.Simulator().Snapshot(),
		Playing:  m.player.Playing(),
		Speed:    m.player.Speed(),
	}
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) schedule(w http.ResponseWriter, _ *http.Request) {
	plan := m.player.Simulator().Plan()
	cfg := plan.Config
	numPidM, numPidN := sim.GridShape(cfg.M, cfg.N, cfg.BlockSizeM, cfg.BlockSizeN)
	writeJSON(w, http.StatusOK, ScheduleResponse{
		NumPidM:  numPidM,
		NumPidN:  numPidN,
		Mode:     cfg.Mode,
		Schedule: plan.Schedule,
		Batches:  len(plan.Batches),
	})
}

func (m *Monitor) metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.player.Simulator().Metrics())
}

func (m *Monitor) step(w http.ResponseWriter, r *http.Request) {
	count := 1
	if raw, ok := mux.Vars(r)["count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("step count must be a positive integer, got %q", raw))
			return
		}
		count = n
	}
	s := m.player.Simulator()
	for i := 0; i < count; i++ {
		if s.Advance() == sim.StatusFinished {
			break
		}
	}
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) reset(w http.ResponseWriter, _ *http.Request) {
	m.player.Reset()
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) play(w http.ResponseWriter, _ *http.Request) {
	m.player.Play()
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.player.Pause()
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) speed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := m.player.SetSpeed(req.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, m.currentState())
}

func (m *Monitor) config(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, m.player.Simulator().Config())
		return
	}
	cfg := m.player.Simulator().Config()
	if err := decodeStrict(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := m.player.Reconfigure(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, m.currentState())
}

// decodeStrict decodes a JSON body into v, rejecting unknown fields.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("monitor: writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	logrus.Debugf("monitor: %v", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
