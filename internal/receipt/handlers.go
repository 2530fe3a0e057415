package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart uploads; high-resolution phone photos run
// well past 10MB
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+userHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeError maps a service error onto its status code. Internal errors are
// logged and not shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, "Internal server error", code)
		return
	}
	writeJSONError(w, err.Error(), code)
}

// decodeBody decodes a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, ErrValidation) {
			writeError(w, r, err)
			return false
		}
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// contentTypeFor falls back to the file extension when the upload carries
// no useful content type
func contentTypeFor(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleScanTicket handles ticket image upload
func (s *Server) handleScanTicket(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeJSONError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeJSONError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeFor(header.Filename, header.Header.Get("Content-Type"))
	detail, err := s.service.ScanTicket(r.Context(), userID, header.Filename, data, contentType, r.FormValue("parser"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) handleCreateTicketFromText(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		Text   string `json:"text"`
		Parser string `json:"parser"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	detail, err := s.service.CreateTicketFromText(r.Context(), userID, req.Text, req.Parser)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request, userID string) {
	tickets, err := s.service.ListTickets(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request, userID string) {
	detail, err := s.service.GetTicket(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGetTicketImage returns the stored image of a ticket
func (s *Server) handleGetTicketImage(w http.ResponseWriter, r *http.Request, userID string) {
	data, contentType, err := s.service.GetTicketImage(userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteTicket(userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, userID string) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.service.UpdateItem(userID, r.PathValue("id"), r.PathValue("itemID"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeJSONError(w, "product_id is required", http.StatusBadRequest)
		return
	}
	item, err := s.service.AcceptSuggestion(userID, r.PathValue("id"), r.PathValue("itemID"), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleIgnoreItem(w http.ResponseWriter, r *http.Request, userID string) {
	item, err := s.service.IgnoreItem(userID, r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRestoreItem(w http.ResponseWriter, r *http.Request, userID string) {
	item, err := s.service.RestoreItem(userID, r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleConfirmTicket(w http.ResponseWriter, r *http.Request, userID string) {
	var req ConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.service.ConfirmTicket(userID, r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePreviewParse parses text without saving a ticket
func (s *Server) handlePreviewParse(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		Text   string `json:"text"`
		Parser string `json:"parser"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	preview, err := s.service.PreviewParse(req.Text, req.Parser)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleListParsers(w http.ResponseWriter, _ *http.Request, _ string) {
	writeJSON(w, http.StatusOK, s.service.Parsers())
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request, userID string) {
	stores, err := s.service.ListStores(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request, userID string) {
	var req CreateStoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	store, err := s.service.CreateStore(userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, store)
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteStore(userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request, userID string) {
	products, err := s.service.ListProducts(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request, userID string) {
	matches, err := s.service.SearchProducts(userID, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, userID string) {
	var req CreateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := s.service.CreateProduct(userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeleteProduct(userID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request, userID string) {
	purchases, err := s.service.ListPurchases(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}
