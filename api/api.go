package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/newrelic/go-agent/v3/integrations/nrhttprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/config"
	"github.com/rohitjsoftype/terminology-api/deps"
)

type API struct {
	config  *config.Config
	deps    *deps.Dependencies
	server  *http.Server
	log     *zap.Logger
	version string
}

type ResponseJSON struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Values  map[string]string `json:"values,omitempty"`
	Errors  string            `json:"errors,omitempty"`
}

func New(cfg *config.Config, d *deps.Dependencies, version string) (*API, error) {
	if cfg == nil {
		return nil, errors.New("cfg cannot be nil")
	}

	if d == nil {
		return nil, errors.New("deps cannot be nil")
	}

	server := &http.Server{
		Addr: cfg.APIListenAddress,
	}

	a := &API{
		config:  cfg,
		deps:    d,
		server:  server,
		version: version,
		log:     d.Log.With(zap.String("pkg", "api")),
	}

	// Run shutdown listener
	go a.runShutdownListener()

	return a, nil
}

func (a *API) runShutdownListener() {
	<-a.deps.ShutdownCtx.Done()

	// Give server 5s to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("Error shutting down API server", zap.Error(err))
	}
}

func (a *API) Run() error {
	logger := a.log.With(zap.String("method", "Run"))

	router := nrhttprouter.New(a.deps.NewRelicApp)

	a.server.Handler = router

	router.HandlerFunc("GET", "/health-check", a.healthCheckHandler)
	router.HandlerFunc("GET", "/version", a.versionHandler)

	router.HandlerFunc("POST", "/fhir/CodeSystem/$import", a.importHandler)

	// Maybe enable profiling
	if a.config.EnablePprof {
		router.Handler(http.MethodGet, "/debug/pprof/*item", http.DefaultServeMux)
	}

	logger.Info("API server running", zap.String("listenAddress", a.config.APIListenAddress))

	return a.server.ListenAndServe()
}

func (a *API) healthCheckHandler(rw http.ResponseWriter, r *http.Request) {
	states, failed, err := a.deps.Health.State()
	if err != nil {
		a.writeError(rw, http.StatusInternalServerError, "failed to read health state")
		return
	}

	status := http.StatusOK
	message := "ok"

	if failed {
		status = http.StatusServiceUnavailable
		message = "one or more health checks failing"
	}

	values := make(map[string]string, len(states))
	for name, state := range states {
		values[name] = state.Status
	}

	WriteJSON(rw, ResponseJSON{
		Status:  status,
		Message: message,
		Values:  values,
	}, status)
}

func (a *API) versionHandler(rw http.ResponseWriter, r *http.Request) {
	WriteJSON(rw, ResponseJSON{
		Status:  http.StatusOK,
		Message: "version info",
		Values: map[string]string{
			"version": a.version,
		},
	}, http.StatusOK)
}

// WriteJSON is a helper function for writing JSON responses
func WriteJSON(rw http.ResponseWriter, payload interface{}, status int) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: unable to marshal JSON during WriteJSON "+
			"(payload: '%s'; status: '%d'): %s\n", payload, status, err)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)

	if _, err := rw.Write(data); err != nil {
		log.Printf("ERROR: unable to write resp in WriteJSON: %s\n", err)
		return
	}
}

func (a *API) writeError(rw http.ResponseWriter, statusCode int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)

	errorResponse := map[string]string{
		"error": message,
	}

	if err := json.NewEncoder(rw).Encode(errorResponse); err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
	}
}
