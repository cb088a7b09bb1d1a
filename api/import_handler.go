package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/fhir"
	"github.com/rohitjsoftype/terminology-api/services/importer"
	"github.com/rohitjsoftype/terminology-api/validate"
)

// importHandler implements POST /fhir/CodeSystem/$import. The body is a FHIR
// Parameters resource; the response is the resolved CodeSystem on success or
// an OperationOutcome on failure.
func (a *API) importHandler(rw http.ResponseWriter, r *http.Request) {
	logger := a.log.With(zap.String("method", "importHandler"))
	logger.Info("handling CodeSystem $import request", zap.String("remoteAddr", r.RemoteAddr))

	txn := newrelic.FromContext(r.Context())

	data, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("failed to read body", zap.Error(err))
		WriteJSON(rw, fhir.ErrorOutcome("invalid", "Failed to read request body"), http.StatusBadRequest)
		return
	}

	defer r.Body.Close()

	req, err := fhir.ParseImportParameters(data)
	if err != nil {
		logger.Warn("failed to parse import parameters", zap.Error(err))
		WriteJSON(rw, fhir.ErrorOutcome("invalid", err.Error()), http.StatusBadRequest)
		return
	}

	if err := validate.ImportRequest(req); err != nil {
		logger.Warn("import request validation failed", zap.Error(err))
		WriteJSON(rw, fhir.ErrorOutcome("invalid", err.Error()), http.StatusBadRequest)
		return
	}

	req.Principal = a.principalFromRequest(r)

	if txn != nil {
		txn.AddAttribute("system", req.System)
	}

	cs, err := a.deps.ImportService.Import(r.Context(), req)
	if err != nil {
		outcome := importer.AsOutcome(err)

		logger.Error("import failed",
			zap.String("kind", string(outcome.Kind)),
			zap.Error(err))

		WriteJSON(rw, fhir.ErrorOutcome(issueCode(outcome.Kind), outcome.Diagnostics),
			httpStatus(outcome.Kind))

		return
	}

	WriteJSON(rw, cs.ToFHIR(), http.StatusOK)
}

// principalFromRequest maps the Authorization header to a caller identity.
// Only the configured admin token grants the elevated privilege imports
// require.
func (a *API) principalFromRequest(r *http.Request) importer.Principal {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return importer.Principal{ID: "anonymous"}
	}

	if a.config.AdminToken != "" && token == a.config.AdminToken {
		return importer.Principal{
			ID:         "admin",
			SuperAdmin: true,
		}
	}

	return importer.Principal{ID: "user"}
}

func httpStatus(kind importer.Kind) int {
	switch kind {
	case importer.KindAuthorizationFailure:
		return http.StatusForbidden
	case importer.KindCodeSystemNotFound:
		return http.StatusNotFound
	case importer.KindStorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func issueCode(kind importer.Kind) string {
	switch kind {
	case importer.KindAuthorizationFailure:
		return "forbidden"
	case importer.KindCodeSystemNotFound:
		return "not-found"
	case importer.KindStorageFailure:
		return "exception"
	default:
		return "invalid"
	}
}
