// Package server exposes pyramid conversion over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"svg2svs/contracts"
	"svg2svs/svs_encoder"
)

const defaultMaxBodyBytes = 256 << 20

// Converter turns the input of a request into a pyramid file.
type Converter interface {
	Convert(req contracts.ConversionRequest) (svs_encoder.Summary, error)
}

type Options struct {
	Version      string
	TmpDir       string // default os.TempDir()
	MaxBodyBytes int64
	Timeout      time.Duration
	Logger       *slog.Logger
}

type Server struct {
	converter Converter
	opts      Options
	logger    *slog.Logger
	startTime time.Time
}

type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  int    `json:"uptime"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

var contentTypeExtensions = map[string]string{
	"image/svg+xml": ".svg",
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/tiff":    ".tif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/gif":     ".gif",
}

func NewServer(converter Converter, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		converter: converter,
		opts:      opts,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router mounts the API under /api/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.opts.Timeout > 0 {
		r.Use(middleware.Timeout(s.opts.Timeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.GetHealth)
		r.Post("/pyramids", s.CreatePyramid)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Uptime:  int(time.Since(s.startTime).Seconds()),
		Version: s.opts.Version,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("error encoding health response", "error", err)
	}
}

// CreatePyramid reads a raw image body and answers with the SVS file.
// Query parameters: base_width (default 16000), factors (default 4,16,64).
func (s *Server) CreatePyramid(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	baseWidth := contracts.DefaultBaseWidth
	if v := r.URL.Query().Get("base_width"); v != "" {
		parsed, err := contracts.ParseBaseWidth(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_BASE_WIDTH", err.Error(), requestID)
			return
		}
		baseWidth = parsed
	}

	factors := contracts.DefaultLayersFactors
	if v := r.URL.Query().Get("factors"); v != "" {
		parsed, err := contracts.ParseLayersFactors(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_FACTORS", err.Error(), requestID)
			return
		}
		factors = parsed
	}

	ext, ok := inputExtension(r.Header.Get("Content-Type"))
	if !ok {
		s.writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			fmt.Sprintf("unsupported content type %q", r.Header.Get("Content-Type")), requestID)
		return
	}

	workDir, err := os.MkdirTemp(s.opts.TmpDir, "svg2svs-")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", requestID)
		return
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input"+ext)
	if err := s.saveBody(w, r, input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error(), requestID)
			return
		}
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), requestID)
		return
	}

	output := filepath.Join(workDir, "output.svs")
	summary, err := s.converter.Convert(contracts.ConversionRequest{
		InputPath:     input,
		OutputPath:    output,
		BaseWidth:     baseWidth,
		LayersFactors: factors,
	})
	if err != nil {
		s.logger.Error("conversion failed", "request_id", requestID, "error", err)
		s.writeError(w, http.StatusUnprocessableEntity, "CONVERSION_FAILED", err.Error(), requestID)
		return
	}

	f, err := os.Open(output)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", requestID)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", requestID)
		return
	}

	w.Header().Set("Content-Type", "image/tiff")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("X-Pyramid-Layers", strconv.Itoa(len(summary.Layers)))
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Error("error writing response", "request_id", requestID, "error", err)
	}
}

func (s *Server) saveBody(w http.ResponseWriter, r *http.Request, path string) error {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("empty request body")
	}
	return nil
}

func inputExtension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := contentTypeExtensions[strings.ToLower(mediaType)]
	return ext, ok
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, errorCode, message, requestID string) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: requestID,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
