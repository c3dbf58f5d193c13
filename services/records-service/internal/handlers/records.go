package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docslot/docslot/services/records-service/internal/storage"
)

// Only PDF uploads are accepted, capped at 10 MB.
const (
	maxDocumentSize = 10 << 20
	pdfContentType  = "application/pdf"
)

type DocumentStore interface {
	Insert(ctx context.Context, d storage.Document) error
	Get(ctx context.Context, id, ownerID string) (storage.Document, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]storage.Document, error)
	MarkUploaded(ctx context.Context, id, ownerID string, sizeBytes int64) error
	Delete(ctx context.Context, id, ownerID string) error
}

type BlobStore interface {
	PresignUpload(ctx context.Context, key, contentType string, sizeBytes int64) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	Head(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

type RecordsHandler struct {
	store  DocumentStore
	blobs  BlobStore
	logger *slog.Logger
}

func NewRecordsHandler(store DocumentStore, blobs BlobStore, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{store: store, blobs: blobs, logger: logger}
}

func ownerFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	role := strings.TrimSpace(r.Header.Get("X-Role"))
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if role != "patient" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return userID, true
}

// UploadRequest reserves a document row and hands the client a presigned PUT
// URL. The row stays pending until Confirm sees the object in the bucket.
func (h *RecordsHandler) UploadRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := ownerFromHeader(w, r)
	if !ok {
		return
	}

	var req struct {
		FileName    string `json:"file_name"`
		ContentType string `json:"content_type"`
		SizeBytes   int64  `json:"size_bytes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.FileName = strings.TrimSpace(req.FileName)
	if req.FileName == "" {
		http.Error(w, "file_name is required", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(strings.ToLower(req.FileName), ".pdf") || req.ContentType != pdfContentType {
		http.Error(w, "only pdf documents are accepted", http.StatusBadRequest)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxDocumentSize {
		http.Error(w, "size_bytes must be between 1 and 10485760", http.StatusBadRequest)
		return
	}

	doc := storage.Document{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		FileName:    req.FileName,
		ObjectKey:   "records/" + ownerID + "/" + uuid.NewString() + ".pdf",
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Status:      storage.StatusPending,
	}
	if err := h.store.Insert(r.Context(), doc); err != nil {
		h.logger.Error("document insert failed", "err", err)
		http.Error(w, "failed to create document", http.StatusInternalServerError)
		return
	}

	uploadURL, err := h.blobs.PresignUpload(r.Context(), doc.ObjectKey, doc.ContentType, doc.SizeBytes)
	if err != nil {
		h.logger.Error("presign upload failed", "err", err)
		http.Error(w, "failed to presign upload", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": doc.ID,
		"upload_url":  uploadURL,
	})
}

// Confirm checks the object actually landed in the bucket before marking the
// document visible.
func (h *RecordsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := ownerFromHeader(w, r)
	if !ok {
		return
	}

	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), req.DocumentID, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}

	size, err := h.blobs.Head(r.Context(), doc.ObjectKey)
	if err != nil {
		http.Error(w, "upload not completed", http.StatusConflict)
		return
	}
	if size > maxDocumentSize {
		http.Error(w, "uploaded object exceeds size limit", http.StatusConflict)
		return
	}

	if err := h.store.MarkUploaded(r.Context(), doc.ID, ownerID, size); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "document already confirmed", http.StatusConflict)
			return
		}
		http.Error(w, "failed to confirm document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentItem struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

// Documents serves list (GET) and delete (DELETE ?id=) on the collection.
func (h *RecordsHandler) Documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecordsHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromHeader(w, r)
	if !ok {
		return
	}

	docs, err := h.store.ListByOwner(r.Context(), ownerID, 100)
	if err != nil {
		http.Error(w, "failed to list documents", http.StatusInternalServerError)
		return
	}
	items := make([]documentItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, documentItem{
			ID:        d.ID,
			FileName:  d.FileName,
			SizeBytes: d.SizeBytes,
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RecordsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromHeader(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), id, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}

	// Blob first; a dangling row is recoverable, a dangling blob is not
	// addressable once the row is gone.
	if err := h.blobs.Delete(r.Context(), doc.ObjectKey); err != nil {
		h.logger.Error("blob delete failed", "err", err, "object_key", doc.ObjectKey)
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	if err := h.store.Delete(r.Context(), id, ownerID); err != nil && !storage.IsNotFound(err) {
		http.Error(w, "failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download returns a presigned GET URL for an uploaded document.
func (h *RecordsHandler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := ownerFromHeader(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), id, ownerID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}
	if doc.Status != storage.StatusUploaded {
		http.Error(w, "document upload not confirmed", http.StatusConflict)
		return
	}

	downloadURL, err := h.blobs.PresignDownload(r.Context(), doc.ObjectKey)
	if err != nil {
		h.logger.Error("presign download failed", "err", err)
		http.Error(w, "failed to presign download", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":  doc.ID,
		"file_name":    doc.FileName,
		"download_url": downloadURL,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
