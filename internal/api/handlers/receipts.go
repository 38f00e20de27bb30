package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/wealth-tracker/internal/api/middleware"
	"github.com/dvloznov/wealth-tracker/internal/auth"
	"github.com/dvloznov/wealth-tracker/internal/blobstore"
	"github.com/dvloznov/wealth-tracker/internal/receipts"
)

// maxReceiptSize caps uploaded receipt images at 10 MiB.
const maxReceiptSize = 10 << 20

// ReceiptsHandler handles receipt scanning endpoints.
type ReceiptsHandler struct {
	scanner *receipts.Scanner
	blobs   blobstore.Store
	log     zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler. blobs may be nil, in
// which case scanned images are not retained.
func NewReceiptsHandler(scanner *receipts.Scanner, blobs blobstore.Store, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{scanner: scanner, blobs: blobs, log: log}
}

// ScanReceipt handles POST /api/receipts/scan
// Accepts a multipart form with a "file" part and returns the extracted
// transaction fields.
func (h *ReceiptsHandler) ScanReceipt(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxReceiptSize+1))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(image) > maxReceiptSize {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Receipt image too large")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	data, err := h.scanner.Scan(r.Context(), image, mimeType)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID.String()).Msg("Receipt scan failed")
		middleware.WriteDomainError(w, err)
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"data":    data,
	}

	if h.blobs != nil {
		objectName := fmt.Sprintf("receipts/%s/%s/%s", userID, time.Now().Format("2006/01/02"), uuid.New().String())
		uri, err := h.blobs.Put(r.Context(), objectName, mimeType, image)
		if err != nil {
			// Extraction succeeded; losing the stored copy is not fatal.
			h.log.Warn().Err(err).Msg("Failed to store receipt image")
		} else {
			resp["receipt_url"] = uri
		}
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}
