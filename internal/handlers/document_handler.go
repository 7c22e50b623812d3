package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragstream/internal/interfaces"
	"github.com/ternarybob/ragstream/internal/models"
)

// HeaderFilename names a raw file upload
const HeaderFilename = "x-filename"

// DocumentHandler serves uploads and the corpus listing
type DocumentHandler struct {
	documentService interfaces.DocumentService
	maxBytes        int64
	logger          arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService interfaces.DocumentService, maxBytes int64, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		maxBytes:        maxBytes,
		logger:          logger,
	}
}

// UploadHandler handles POST /upload.
// JSON bodies {title, text} are embedded; other bodies need x-filename and are stored raw.
func (h *DocumentHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if isJSON(r.Header.Get("Content-Type")) {
		h.uploadText(w, r, caller)
		return
	}

	if filename := strings.TrimSpace(r.Header.Get(HeaderFilename)); filename != "" {
		h.uploadFile(w, r, caller, filename)
		return
	}

	WriteError(w, http.StatusBadRequest, "Unsupported upload content type. Send JSON {title, text} or binary with x-filename header")
}

func (h *DocumentHandler) uploadText(w http.ResponseWriter, r *http.Request, caller models.Caller) {
	var req models.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if tooLarge(err) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == "" {
		WriteError(w, http.StatusBadRequest, "Missing text")
		return
	}

	id, err := h.documentService.IngestText(r.Context(), caller, req.Title, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	WriteJSON(w, http.StatusCreated, models.UploadResponse{ID: id})
}

func (h *DocumentHandler) uploadFile(w http.ResponseWriter, r *http.Request, caller models.Caller, filename string) {
	record, err := h.documentService.SaveFile(r.Context(), caller, filename, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		if tooLarge(err) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		writeServiceError(w, h.logger, err, "")
		return
	}

	WriteJSON(w, http.StatusCreated, models.UploadResponse{ID: record.ID})
}

// ListHandler handles GET /docs
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	entries, err := h.documentService.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	WriteJSON(w, http.StatusOK, models.DocumentList{Docs: entries})
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json"
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
