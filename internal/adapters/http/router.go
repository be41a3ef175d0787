package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/pdf-qa/internal/config"
	"github.com/kirillkom/pdf-qa/internal/core/domain"
	"github.com/kirillkom/pdf-qa/internal/core/ports"
	"github.com/kirillkom/pdf-qa/internal/observability/metrics"
)

const (
	defaultAskTimeout   = 300 * time.Second
	defaultMaxUpload    = 100 << 20
	maxFormFieldBytes   = 64 << 10
	uploadTempPattern   = "pdfqa-upload-*"
	fieldQuestion       = "question"
	fieldUploadID       = "uploadId"
	fieldFiles          = "pdfs"
	fieldFileSingular   = "pdf"
	sessionsRoutePrefix = "/v1/sessions/"
)

type Router struct {
	cfg      config.Config
	asker    ports.DocumentAsker
	sessions ports.SessionReader
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter builds the API router. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	asker ports.DocumentAsker,
	sessions ports.SessionReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		asker:    asker,
		sessions: sessions,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc(sessionsRoutePrefix, rt.getSession)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	form, err := rt.readAskForm(r)
	defer form.cleanup()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:   "Upload too large.",
				Details: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "read ask form", err))
		return
	}

	timeout := time.Duration(rt.cfg.AskTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultAskTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	requestID := requestIDFromContext(r.Context())
	start := time.Now()
	result, err := rt.asker.Ask(ctx, domain.AskRequest{
		Uploads:  form.uploads,
		UploadID: form.uploadID,
		Question: form.question,
	})
	elapsed := time.Since(start)

	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordAsk(0, elapsed, err)
		}
		if errors.Is(r.Context().Err(), context.Canceled) {
			slog.Warn("client_disconnected",
				"request_id", requestID,
				"duration_ms", elapsed.Milliseconds(),
			)
			return
		}
		slog.Error("ask_failed",
			"request_id", requestID,
			"uploads", len(form.uploads),
			"upload_id", form.uploadID,
			"error", err,
		)
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordAsk(len(result.Sources), elapsed, nil)
	}
	uploadID := ""
	if result.UploadID != nil {
		uploadID = *result.UploadID
	}
	slog.Info("ask_completed",
		"request_id", requestID,
		"upload_id", uploadID,
		"documents", len(result.Sources),
		"duration_ms", elapsed.Milliseconds(),
	)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, sessionsRoutePrefix)
	if id == "" || strings.Contains(id, "/") {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "get session", fmt.Errorf("malformed session path %q", r.URL.Path)))
		return
	}

	session, err := rt.sessions.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if session.Documents == nil {
		session.Documents = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, session)
}

type askForm struct {
	uploads   []domain.Upload
	uploadID  string
	question  *string
	tempPaths []string
}

// cleanup removes spooled parts the session storage did not adopt.
func (f *askForm) cleanup() {
	for _, path := range f.tempPaths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("upload_cleanup_failed", "path", path, "error", err)
		}
	}
}

// readAskForm streams file parts to temporary files instead of buffering
// the whole body. Non-multipart bodies are read as plain form values.
func (rt *Router) readAskForm(r *http.Request) (*askForm, error) {
	form := &askForm{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return form, err
		}
		form.applyValue(fieldUploadID, r.PostForm)
		form.applyValue(fieldQuestion, r.PostForm)
		return form, nil
	default:
		return form, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return form, fmt.Errorf("open multipart body: %w", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return form, fmt.Errorf("read multipart part: %w", err)
		}

		err = rt.readPart(form, part.FormName(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			return form, err
		}
	}
}

func (rt *Router) readPart(form *askForm, name, filename string, body io.Reader) error {
	switch {
	case filename != "" && (name == fieldFiles || name == fieldFileSingular):
		upload, err := rt.spool(form, filename, body)
		if err != nil {
			return err
		}
		form.uploads = append(form.uploads, upload)
	case name == fieldQuestion:
		value, err := readField(name, body)
		if err != nil {
			return err
		}
		form.question = &value
	case name == fieldUploadID:
		value, err := readField(name, body)
		if err != nil {
			return err
		}
		form.uploadID = strings.TrimSpace(value)
	default:
		if _, err := io.Copy(io.Discard, body); err != nil {
			return fmt.Errorf("skip field %q: %w", name, err)
		}
	}
	return nil
}

func (rt *Router) spool(form *askForm, filename string, body io.Reader) (domain.Upload, error) {
	tmp, err := os.CreateTemp(rt.cfg.StagingPath, uploadTempPattern)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("create staging file: %w", err)
	}
	form.tempPaths = append(form.tempPaths, tmp.Name())

	size, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return domain.Upload{}, fmt.Errorf("spool %q: %w", filename, err)
	}

	return domain.Upload{
		Filename: filename,
		TempPath: tmp.Name(),
		Size:     size,
	}, nil
}

func readField(name string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxFormFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("read field %q: %w", name, err)
	}
	if len(raw) > maxFormFieldBytes {
		return "", fmt.Errorf("field %q exceeds %d bytes", name, maxFormFieldBytes)
	}
	return string(raw), nil
}

func (f *askForm) applyValue(name string, values map[string][]string) {
	vals, ok := values[name]
	if !ok || len(vals) == 0 {
		return
	}
	switch name {
	case fieldQuestion:
		value := vals[0]
		f.question = &value
	case fieldUploadID:
		f.uploadID = strings.TrimSpace(vals[0])
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorResponse{
		Error:   errorMessage(err),
		Details: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
