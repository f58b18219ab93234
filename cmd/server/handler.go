package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrThearMan/undine-sub001/internal/engine"
	"github.com/MrThearMan/undine-sub001/internal/executor"
	"github.com/MrThearMan/undine-sub001/internal/gqlbridge"
	"github.com/MrThearMan/undine-sub001/internal/logging"
	"github.com/MrThearMan/undine-sub001/internal/planner"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// queryRequest is the POST /query body.
type queryRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type queryError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type queryResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []queryError   `json:"errors,omitempty"`
}

func newQueryHandler(eng *engine.Engine, registry *schema.Registry, logger *logging.Logger, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeResponse(w, logger, http.StatusBadRequest, queryResponse{
				Errors: []queryError{{Message: "malformed request body: " + err.Error()}},
			})
			return
		}
		if req.Query == "" {
			writeResponse(w, logger, http.StatusBadRequest, queryResponse{
				Errors: []queryError{{Message: "query is required"}},
			})
			return
		}

		root, err := gqlbridge.Parse(registry, req.Query, req.Variables)
		if err != nil {
			writeResponse(w, logger, http.StatusBadRequest, queryResponse{
				Errors: []queryError{{Message: err.Error()}},
			})
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := eng.Execute(ctx, root)
		if err != nil {
			writeResponse(w, logger, statusFor(err), queryResponse{
				Errors: []queryError{{Message: err.Error(), Path: errorPath(err)}},
			})
			return
		}
		writeResponse(w, logger, http.StatusOK, queryResponse{
			Data: map[string]any{root.Name: result},
		})
	})
}

// statusFor maps engine failures onto HTTP status codes: requests the
// planner rejects are client errors, backend failures are not.
func statusFor(err error) int {
	var fetchErr *executor.FetchExecutionError
	if errors.As(err, &fetchErr) {
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadRequest
}

// errorPath extracts the requested-tree path an error is annotated with.
func errorPath(err error) string {
	var planErr *planner.PlanError
	if errors.As(err, &planErr) {
		return planErr.Path
	}
	var fetchErr *executor.FetchExecutionError
	if errors.As(err, &fetchErr) {
		return fetchErr.Path
	}
	return ""
}

func writeResponse(w http.ResponseWriter, logger *logging.Logger, status int, body queryResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("write response", slog.String("error", err.Error()))
	}
}
