package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"greyportal/internal/flash"
	"greyportal/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	formField = "image"

	// defaultMaxMemory is the part of a multipart body kept in memory; the
	// rest spills to temporary files.
	defaultMaxMemory = 32 << 20
)

// Processor runs the upload workflow for one request.
type Processor interface {
	Process(ctx context.Context, req upload.UploadRequest) (*upload.Result, error)
}

// Handler serves the upload form and the result page on a single route.
type Handler struct {
	processor Processor
	flash     *flash.Store
	templates *template.Template
	logger    *zap.Logger
}

type formPage struct {
	Messages []string
}

// resultPage carries links issued by the storage backend. They are marked
// safe so file:// links of the local backend survive escaping.
type resultPage struct {
	Key          string
	OriginalURL  template.URL
	ProcessedURL template.URL
	ExpiresAt    string
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(processor Processor, flashes *flash.Store, logger *zap.Logger) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		processor: processor,
		flash:     flashes,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Form renders the upload form together with any flashed messages.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, "upload.html", formPage{Messages: h.flash.Pop(w, r)})
}

// Upload handles the form submission. It blocks until the processed image is
// available, the wait times out or a storage call fails.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	req, cleanup := h.readUpload(r)
	defer cleanup()

	// A client disconnect does not abort the wait; it still ends at the poll
	// budget.
	res, err := h.processor.Process(context.WithoutCancel(r.Context()), req)
	if err != nil {
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			if ferr := h.flash.Add(w, r, upload.UserMessage(err)); ferr != nil {
				h.logger.Error("Failed to set flash message", zap.Error(ferr))
			}
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusSeeOther)
			return
		}

		h.render(w, "upload.html", formPage{Messages: []string{upload.UserMessage(err)}})
		return
	}

	h.render(w, "result.html", resultPage{
		Key:          res.Key,
		OriginalURL:  template.URL(res.Original.URL),
		ProcessedURL: template.URL(res.Processed.URL),
		ExpiresAt:    res.Processed.ExpiresAt.UTC().Format("15:04 MST"),
	})
}

// readUpload extracts the image field. A missing or unreadable field yields
// an UploadRequest without content, which the processor rejects.
func (h *Handler) readUpload(r *http.Request) (upload.UploadRequest, func()) {
	cleanup := func() {}

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		h.logger.Debug("Unreadable upload form", zap.Error(err))
		return upload.UploadRequest{}, cleanup
	}
	if r.MultipartForm != nil {
		cleanup = func() { _ = r.MultipartForm.RemoveAll() }
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			h.logger.Debug("Unreadable upload field", zap.Error(err))
		}
		return upload.UploadRequest{}, cleanup
	}

	prev := cleanup
	cleanup = func() {
		_ = file.Close()
		prev()
	}

	return upload.UploadRequest{
		Name:        header.Filename,
		ContentType: contentType(header),
		Size:        header.Size,
		Content:     file,
	}, cleanup
}

func contentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("Failed to render template", zap.String("template", name), zap.Error(err))
	}
}
