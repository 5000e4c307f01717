package qa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"hackrx/backend/internal/document"
	"hackrx/backend/internal/middleware"
)

type Runner interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

type Handler struct {
	runner   Runner
	maxBytes int64
}

// NewHandler serves question runs, rejecting request bodies over maxBytes.
func NewHandler(runner Runner, maxBytes int64) *Handler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &Handler{runner: runner, maxBytes: maxBytes}
}

type runBody struct {
	Documents string          `json:"documents"`
	Questions json.RawMessage `json:"questions"`
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	req, closeFile, err := h.parse(r)
	if closeFile != nil {
		defer closeFile()
	}
	if err != nil {
		h.writeRunError(ctx, w, err)
		return
	}

	resp, err := h.runner.Run(ctx, req)
	if err != nil {
		h.writeRunError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// parse accepts JSON, multipart and urlencoded bodies. The returned func, when
// non-nil, closes an uploaded file.
func (h *Handler) parse(r *http.Request) (Request, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return Request{}, nil, bodyError(err)
		}
		questions, err := parseQuestions(json.RawMessage(r.FormValue("questions")))
		if err != nil {
			return Request{}, nil, err
		}
		req := Request{DocumentURL: r.FormValue("documents"), Questions: questions}

		file, header, err := r.FormFile("file")
		if err == nil {
			req.File = file
			req.Filename = header.Filename
			return req, func() { file.Close() }, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return Request{}, nil, errBadBody
		}
		return req, nil, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return Request{}, nil, bodyError(err)
		}
		questions, err := parseQuestions(json.RawMessage(r.PostFormValue("questions")))
		if err != nil {
			return Request{}, nil, err
		}
		return Request{DocumentURL: r.PostFormValue("documents"), Questions: questions}, nil, nil

	default:
		var body runBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return Request{}, nil, bodyError(err)
		}
		questions, err := parseQuestions(body.Questions)
		if err != nil {
			return Request{}, nil, err
		}
		return Request{DocumentURL: body.Documents, Questions: questions}, nil, nil
	}
}

var errBadBody = errors.New("request body could not be parsed")

// bodyError keeps size-limit failures distinguishable from malformed bodies.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return errBadBody
}

// parseQuestions decodes a JSON list of strings. The list may itself arrive
// JSON-encoded inside a string.
func parseQuestions(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, ErrInvalidQuestions
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, ErrInvalidQuestions
		}
		trimmed = strings.TrimSpace(inner)
	}

	var questions []string
	if err := json.Unmarshal([]byte(trimmed), &questions); err != nil {
		return nil, ErrInvalidQuestions
	}
	if len(questions) == 0 {
		return nil, ErrInvalidQuestions
	}
	return questions, nil
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError

	switch {
	case errors.Is(err, ErrInvalidQuestions), errors.Is(err, ErrMissingDocument):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.Is(err, errBadBody):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
	case errors.As(err, &maxErr), errors.Is(err, document.ErrTooLarge):
		h.writeError(ctx, w, "DOCUMENT_TOO_LARGE", err.Error(), http.StatusBadRequest)
	case errors.Is(err, document.ErrDownloadFailed):
		h.writeError(ctx, w, "DOWNLOAD_FAILED", err.Error(), http.StatusBadRequest)
	case errors.Is(err, document.ErrUnsupportedType):
		h.writeError(ctx, w, "UNSUPPORTED_FILE_TYPE", err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(ctx, "run failed", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
