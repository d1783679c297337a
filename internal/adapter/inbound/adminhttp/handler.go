package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/i2y/restbridge/internal/domain"
	"github.com/i2y/restbridge/internal/usecase"
)

// maxRequestBytes bounds admin request bodies.
const maxRequestBytes = 10 << 20

// Invoker invokes one operation.
type Invoker interface {
	Execute(ctx context.Context, name string, in *domain.Input) (*domain.Output, error)
}

// Catalog lists and describes operations.
type Catalog interface {
	Execute(ctx context.Context) ([]usecase.OperationSummary, error)
	Describe(ctx context.Context, name string) (usecase.OperationSummary, error)
}

// Importer imports an API description document.
type Importer interface {
	Execute(ctx context.Context, source, endpointName string) (*usecase.ImportResult, error)
}

// Handlers struct holds dependencies for the HTTP handlers.
type Handlers struct {
	invoker     Invoker
	catalog     Catalog
	importer    Importer
	afterImport func(context.Context)
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers struct. afterImport, when set, runs after every
// successful import, e.g. to refresh the MCP tool list.
func NewHandlers(invoker Invoker, catalog Catalog, importer Importer, afterImport func(context.Context), logger *slog.Logger) *Handlers {
	return &Handlers{
		invoker:     invoker,
		catalog:     catalog,
		importer:    importer,
		afterImport: afterImport,
		logger:      logger.With("component", "admin_http"),
	}
}

// RegisterAdminRoutes sets up the HTTP routes for admin endpoints.
func (h *Handlers) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/operations", h.handleListOperations)
	mux.HandleFunc("GET /admin/operations/{name}/schema", h.handleSchema)
	mux.HandleFunc("POST /admin/operations/{name}/invoke", h.handleInvoke)
	mux.HandleFunc("POST /admin/import", h.handleImport)
}

// OperationView is one entry of GET /admin/operations.
type OperationView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Method      string `json:"method"`
	Path        string `json:"path,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// SchemaView is the response of GET /admin/operations/{name}/schema.
type SchemaView struct {
	Name   string                  `json:"name"`
	Input  domain.JSONSchemaProps  `json:"input"`
	Output *domain.JSONSchemaProps `json:"output,omitempty"`
}

// ImportRequest defines the expected JSON body for the /admin/import endpoint.
type ImportRequest struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ImportResponse reports what an import stored.
type ImportResponse struct {
	Endpoint   string   `json:"endpoint"`
	Operations []string `json:"operations"`
}

// ErrorResponse is the body of every failed admin call.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Body       string `json:"body,omitempty"`
}

func (h *Handlers) handleListOperations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.catalog.Execute(r.Context())
	if err != nil {
		h.logger.Error("Failed to list operations", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: domain.CodeInternal, Message: err.Error()})
		return
	}
	views := make([]OperationView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, OperationView{
			Name:        s.Config.ID,
			Description: s.Tool.Description,
			Method:      s.Config.EffectiveMethod(),
			Path:        s.Config.Path,
			Endpoint:    s.Config.Endpoint,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	s, err := h.catalog.Describe(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SchemaView{Name: s.Tool.Name, Input: s.Tool.InputSchema, Output: s.Tool.OutputSchema})
}

func (h *Handlers) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	log := h.logger.With(slog.String("operation", name))
	defer r.Body.Close()

	args := map[string]any{}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("Failed to decode invoke request body", slog.Any("error", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: domain.CodeInvalidInput, Message: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	in, err := domain.InputFromMap(args)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: domain.CodeInvalidInput, Message: err.Error()})
		return
	}
	if tx := r.Header.Get("X-Transaction-Id"); tx != "" && in.TransactionID == "" {
		in.TransactionID = tx
	}

	out, err := h.invoker.Execute(r.Context(), name, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Transaction-Id", in.TransactionID)

	if rc, ok := out.Content.(io.ReadCloser); ok {
		defer rc.Close()
		if ct := firstHeader(out.Header, "Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.WriteHeader(out.StatusCode)
		if _, err := io.Copy(w, rc); err != nil {
			log.Warn("Failed to stream response body", slog.Any("error", err))
		}
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req ImportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode import request body", slog.Any("error", err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: domain.CodeInvalidInput, Message: fmt.Sprintf("Invalid request body: %v", err)})
		return
	}
	if req.Source == "" {
		h.logger.Warn("Import request missing source field")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: domain.CodeInvalidInput, Message: "Missing 'source' field in request body"})
		return
	}

	h.logger.Info("Received import request", slog.String("source", req.Source))
	res, err := h.importer.Execute(r.Context(), req.Source, req.Endpoint)
	if err != nil {
		h.logger.Error("Failed to import", slog.String("source", req.Source), slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Code: domain.CodeInternal, Message: fmt.Sprintf("Failed to import: %v", err)})
		return
	}
	if h.afterImport != nil {
		h.afterImport(r.Context())
	}

	resp := ImportResponse{Endpoint: res.Endpoint.Name, Operations: make([]string, 0, len(res.Operations))}
	for _, op := range res.Operations {
		resp.Operations = append(resp.Operations, op.ID)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, usecase.ErrOperationNotFound) || errors.Is(err, usecase.ErrEndpointNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: domain.CodeInternal, Message: err.Error()})
		return
	}
	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: domain.CodeInternal, Message: err.Error()})
		return
	}
	resp := ErrorResponse{Code: derr.Code, Message: derr.Message, StatusCode: derr.StatusCode, Body: derr.Body}
	if derr.Err != nil {
		resp.Message += ": " + derr.Err.Error()
	}
	writeJSON(w, StatusFor(derr.Kind), resp)
}

// StatusFor maps an error kind to the admin API response status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInputValidation, domain.KindNotSupported, domain.KindContent:
		return http.StatusBadRequest
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindRemote, domain.KindOutputValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func firstHeader(header map[string][]string, name string) string {
	for k, v := range header {
		if http.CanonicalHeaderKey(k) == name && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
