// Package handler exposes the import pipeline over HTTP.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	importservice "github.com/FACorreiaa/fin-analyzer/internal/domain/import/service"
	"github.com/FACorreiaa/fin-analyzer/pkg/httpx"
	"github.com/FACorreiaa/fin-analyzer/pkg/storage"
)

const (
	DefaultMaxUploadSize = 10 << 20
	recentReports        = 100
)

// Importer is the import service surface the handler drives.
type Importer interface {
	ImportFile(ctx context.Context, req importservice.ImportRequest) (*importservice.BatchReport, error)
	DetectFormat(ctx context.Context, data []byte) (*importservice.Detection, error)
	SupportedBanks() []importservice.Bank
}

// ImportHandler handles the import endpoints
type ImportHandler struct {
	importer      Importer
	archive       storage.Storage
	maxUploadSize int64
	logger        *slog.Logger

	mu      sync.Mutex
	reports map[uuid.UUID]*importservice.BatchReport
	order   []uuid.UUID
}

// NewImportHandler creates a new import handler. archive may be nil, in which
// case uploads are not kept.
func NewImportHandler(importer Importer, archive storage.Storage, maxUploadSize int64, logger *slog.Logger) *ImportHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{
		importer:      importer,
		archive:       archive,
		maxUploadSize: maxUploadSize,
		logger:        logger,
		reports:       make(map[uuid.UUID]*importservice.BatchReport),
	}
}

// Routes mounts the handler under /import.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Route("/import", func(r chi.Router) {
		r.Get("/supported-banks", h.SupportedBanks)
		r.Post("/detect-format", h.DetectFormat)
		r.Post("/upload", h.Upload)
		r.Get("/batches/{batchID}", h.GetBatch)
		r.Get("/batches/{batchID}/row-errors.csv", h.RowErrorsCSV)
		r.Get("/accounts/{accountID}/files", h.ListFiles)
		r.Post("/accounts/{accountID}/files/{fileID}/reimport", h.Reimport)
		r.Delete("/accounts/{accountID}/files/{fileID}", h.DeleteFile)
	})
}

// SupportedBanks lists the registered formats in detection order.
func (h *ImportHandler) SupportedBanks(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"banks": h.importer.SupportedBanks()})
}

// DetectFormat reports which format a file would be parsed as.
func (h *ImportHandler) DetectFormat(w http.ResponseWriter, r *http.Request) {
	data, _, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	det, err := h.importer.DetectFormat(r.Context(), data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, det)
}

// Upload imports a statement file. Form fields: file, account_id, and the
// optional bank, skip_duplicates (default true) and use_llm (default false).
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.readUpload(w, r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	accountID, err := httpx.ParseID("account_id", r.FormValue("account_id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.archiveUpload(r.Context(), accountID, filename, data)

	h.runImport(w, r, importservice.ImportRequest{
		Data:      data,
		FileName:  filename,
		AccountID: accountID,
		Format:    r.FormValue("bank"),
		Options:   opts,
	})
}

// Reimport runs an archived upload through the pipeline again. Query
// parameters mirror the upload form fields.
func (h *ImportHandler) Reimport(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httpx.WriteError(w, http.StatusNotFound, "upload archive is disabled")
		return
	}
	accountID, err := httpx.ParseID("account_id", chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		h.respondError(w, r, httpx.BadRequest("file id must be a uuid"))
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	rc, info, err := h.archive.Download(r.Context(), accountID, fileID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("failed to read archived file: %w", err))
		return
	}

	h.runImport(w, r, importservice.ImportRequest{
		Data:      data,
		FileName:  info.Name,
		AccountID: accountID,
		Format:    r.URL.Query().Get("bank"),
		Options:   opts,
	})
}

func (h *ImportHandler) runImport(w http.ResponseWriter, r *http.Request, req importservice.ImportRequest) {
	report, err := h.importer.ImportFile(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.remember(report)
	httpx.WriteJSON(w, http.StatusOK, report)
}

// GetBatch returns a recent import report.
func (h *ImportHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookup(chi.URLParam(r, "batchID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// RowErrorsCSV downloads the rejected rows of a recent import.
func (h *ImportHandler) RowErrorsCSV(w http.ResponseWriter, r *http.Request) {
	report, err := h.lookup(chi.URLParam(r, "batchID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteRowErrorsCSV(&buf); err != nil {
		h.respondError(w, r, fmt.Errorf("failed to write row errors: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.BatchID.String()+"-row-errors.csv"))
	_, _ = w.Write(buf.Bytes())
}

// ListFiles lists the archived uploads of an account.
func (h *ImportHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"files": []*storage.FileInfo{}})
		return
	}
	accountID, err := httpx.ParseID("account_id", chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	files, err := h.archive.List(r.Context(), accountID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if files == nil {
		files = []*storage.FileInfo{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"files": files})
}

// DeleteFile removes an archived upload. Imported transactions are kept.
func (h *ImportHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httpx.WriteError(w, http.StatusNotFound, "upload archive is disabled")
		return
	}
	accountID, err := httpx.ParseID("account_id", chi.URLParam(r, "accountID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fileID, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		h.respondError(w, r, httpx.BadRequest("file id must be a uuid"))
		return
	}
	if err := h.archive.Delete(r.Context(), accountID, fileID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Helpers
// ============================================================================

func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		return nil, "", httpx.BadRequest("file too large or invalid form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", httpx.BadRequest("no file provided")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", httpx.BadRequest("failed to read file")
	}
	if len(data) == 0 {
		return nil, "", httpx.BadRequest("file is empty")
	}
	return data, header.Filename, nil
}

func parseOptions(r *http.Request) (importservice.ImportOptions, error) {
	opts := importservice.DefaultImportOptions()
	var err error
	if opts.SkipDuplicates, err = httpx.ParseBool("skip_duplicates", r.FormValue("skip_duplicates"), opts.SkipDuplicates); err != nil {
		return opts, err
	}
	if opts.UseLLM, err = httpx.ParseBool("use_llm", r.FormValue("use_llm"), opts.UseLLM); err != nil {
		return opts, err
	}
	return opts, nil
}

// archiveUpload keeps the raw bytes. A failure is logged and the import goes on.
func (h *ImportHandler) archiveUpload(ctx context.Context, accountID int64, filename string, data []byte) {
	if h.archive == nil {
		return
	}
	contentType := http.DetectContentType(data)
	info, err := h.archive.Upload(ctx, accountID, filename, contentType, bytes.NewReader(data))
	if err != nil {
		h.logger.Warn("failed to archive upload",
			slog.Int64("account_id", accountID),
			slog.String("file", filename),
			"error", err,
		)
		return
	}
	h.logger.Debug("upload archived", slog.String("file_id", info.ID.String()), slog.String("path", info.Path))
}

func (h *ImportHandler) remember(report *importservice.BatchReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reports[report.BatchID] = report
	h.order = append(h.order, report.BatchID)
	if len(h.order) > recentReports {
		delete(h.reports, h.order[0])
		h.order = h.order[1:]
	}
}

var errBatchNotFound = errors.New("batch not found")

func (h *ImportHandler) lookup(raw string) (*importservice.BatchReport, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, httpx.BadRequest("batch id must be a uuid")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	report, ok := h.reports[id]
	if !ok {
		return nil, errBatchNotFound
	}
	return report, nil
}

// statusFor maps import errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, httpx.ErrBadRequest):
		return http.StatusBadRequest
	case importservice.IsStructural(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBatchNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *ImportHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httpx.RespondError(w, r, h.logger, statusFor(err), err)
}
