package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// HealthCheckProcedure is the Connect procedure answering health probes.
const HealthCheckProcedure = "/splitledger.v1.HealthService/Check"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports process uptime and database reachability.
type Health struct {
	db      Pinger
	started time.Time
}

// NewHealth creates a health reporter. started is the process start time.
func NewHealth(db Pinger, started time.Time) *Health {
	return &Health{db: db, started: started}
}

// HealthStatus is the health report body.
type HealthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// Probe checks the database within a short deadline.
func (h *Health) Probe(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:   "ok",
		Database: "up",
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	if err := h.db.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Database = "down"
	}
	return status
}

// ServeHTTP answers GET /health. A degraded service reports 503.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Probe(r.Context())
	if status.Status != "ok" {
		WriteResponse(w, http.StatusServiceUnavailable, Envelope{Code: CodeError, Message: "service degraded", Data: status})
		return
	}
	writeOK(w, http.StatusOK, "service healthy", status)
}

// ConnectHandler serves the health probe over the Connect protocol for
// gRPC-style load balancer checks.
func (h *Health) ConnectHandler() (string, http.Handler) {
	return HealthCheckProcedure, connect.NewUnaryHandler(
		HealthCheckProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
			status := h.Probe(ctx)
			body, err := structpb.NewStruct(map[string]any{
				"status":   status.Status,
				"database": status.Database,
				"uptime":   status.Uptime,
			})
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			if status.Status != "ok" {
				return nil, connect.NewError(connect.CodeUnavailable, errors.New("database unavailable"))
			}
			return connect.NewResponse(body), nil
		},
	)
}
