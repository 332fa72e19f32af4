package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/core-tools/hsu-desk/pkg/errors"
	"github.com/core-tools/hsu-desk/pkg/unitconfig"
)

const maxRequestBody = 64 * 1024

// StartRequest is the optional body of start and restart
type StartRequest struct {
	WorkingDirectory *string `json:"working_directory,omitempty"`
	// CommandLine is split on whitespace
	CommandLine     *string `json:"command_line,omitempty"`
	URL             *string `json:"url,omitempty"`
	IntervalSeconds *int    `json:"interval_seconds,omitempty"`
}

func (s StartRequest) overrides() unitconfig.Overrides {
	o := unitconfig.Overrides{
		WorkingDirectory: s.WorkingDirectory,
		URL:              s.URL,
		IntervalSeconds:  s.IntervalSeconds,
	}
	if s.CommandLine != nil {
		o.CommandLine = unitconfig.ParseCommandLine(*s.CommandLine)
	}
	return o
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

type logsResponse struct {
	Unit  string   `json:"unit"`
	Lines []string `json:"lines"`
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := a.contract.Status(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, units)
}

func (a *API) getUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := a.contract.Unit(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, unit)
}

func (a *API) startUnit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	request, err := decodeStartRequest(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if err := a.contract.Start(r.Context(), name, request.overrides()); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondUnit(w, r, name)
}

func (a *API) stopUnit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.contract.Stop(r.Context(), name); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondUnit(w, r, name)
}

func (a *API) restartUnit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	request, err := decodeStartRequest(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if err := a.contract.Restart(r.Context(), name, request.overrides()); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondUnit(w, r, name)
}

func (a *API) getLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			a.respondError(w, errors.NewValidationError("limit must be a non-negative integer", err))
			return
		}
		limit = parsed
	}

	lines, err := a.contract.Logs(r.Context(), name, limit)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, logsResponse{Unit: name, Lines: lines})
}

func (a *API) clearLogs(w http.ResponseWriter, r *http.Request) {
	if err := a.contract.ClearLog(r.Context(), chi.URLParam(r, "name")); err != nil {
		a.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) respondUnit(w http.ResponseWriter, r *http.Request, name string) {
	unit, err := a.contract.Unit(r.Context(), name)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, unit)
}

func decodeStartRequest(r *http.Request) (StartRequest, error) {
	var request StartRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return request, errors.NewIOError("failed to read request body", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return request, nil
	}
	if err := json.Unmarshal(body, &request); err != nil {
		return request, errors.NewValidationError("malformed request body", err)
	}
	return request, nil
}

func (a *API) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Errorf("Failed to marshal JSON response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		a.logger.Debugf("Failed to write JSON response: %v", err)
	}
}

var statusCodes = map[errors.ErrorType]int{
	errors.ErrorTypeNotFound:       http.StatusNotFound,
	errors.ErrorTypeAlreadyRunning: http.StatusConflict,
	errors.ErrorTypeNotRunning:     http.StatusConflict,
	errors.ErrorTypeValidation:     http.StatusBadRequest,
	errors.ErrorTypeSpawn:          http.StatusUnprocessableEntity,
	errors.ErrorTypeTimeout:        http.StatusGatewayTimeout,
	errors.ErrorTypePermission:     http.StatusForbidden,
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	errorType := errors.TypeOf(err)
	status, ok := statusCodes[errorType]
	if !ok {
		status = http.StatusInternalServerError
		a.logger.Errorf("API error: %v", err)
	}
	if errorType == "" {
		errorType = errors.ErrorTypeInternal
	}
	a.respondJSON(w, status, errorResponse{Error: err.Error(), Type: string(errorType)})
}
