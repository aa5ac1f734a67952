package receipt

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"receiptsnap/internal/capture"
	"receiptsnap/internal/extraction"
)

// envelope is the wire shape for every API response.
type envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Fields     interface{} `json:"fields,omitempty"`
	Pagination interface{} `json:"pagination,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses: validation
// 400, not found 404, in-flight submit 409, everything else 500 with the
// store's message surfaced verbatim.
func writeServiceError(w http.ResponseWriter, err error) {
	if verr, ok := AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Error:   "Validation failed",
			Fields:  verr.Fields,
		})
		return
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	if errors.Is(err, ErrSubmitInFlight) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handleIndex serves the HTML interface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleAnalyze runs AI extraction on an uploaded image. Extraction failure
// is an in-band outcome, so the response is always 200 with a Result; only
// a missing or unreadable upload is a request error.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	image, err := capture.FromMultipart(f, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.service.Analyze(r.Context(), image)
	writeData(w, http.StatusOK, result)
}

// createRequest is the submission payload: the draft form, an optional
// captured image as a data URL, and the extraction result if the client
// ran analysis.
type createRequest struct {
	StoreName  string             `json:"storeName"`
	Amount     string             `json:"amount"`
	Date       string             `json:"date"`
	ImageData  string             `json:"imageData,omitempty"`
	Extraction *extraction.Result `json:"extraction,omitempty"`
}

// handleCreateReceipt runs the submission flow.
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var image *capture.RawImage
	if req.ImageData != "" {
		var err error
		image, err = capture.FromDataURL(req.ImageData)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	draft := DraftForm{StoreName: req.StoreName, Amount: req.Amount, Date: req.Date}
	created, err := s.service.Submit(r.Context(), draft, image, req.Extraction)
	if err != nil {
		slog.Error("Error creating receipt", "error", err)
		writeServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, created)
}

// handleListReceipts returns a filtered, sorted, paginated receipt list.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipts, total, err := s.service.List(query)
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch receipts")
		return
	}

	pages := 0
	if query.Limit > 0 {
		pages = (total + query.Limit - 1) / query.Limit
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    receipts,
		Pagination: pagination{
			Page:  query.Page,
			Limit: query.Limit,
			Total: total,
			Pages: pages,
		},
	})
}

// handleGetReceipt returns a single receipt.
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, receipt)
}

// updateRequest is the partial-update payload. Pointer fields distinguish
// "not provided" from an explicit value.
type updateRequest struct {
	ImageURL    *string  `json:"imageUrl"`
	ImageBase64 *string  `json:"imageBase64"`
	StoreName   *string  `json:"storeName"`
	Amount      *float64 `json:"amount"`
	Date        *string  `json:"date"`
}

// handleUpdateReceipt merges provided fields onto a stored receipt.
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := Patch{
		ImageURL:    req.ImageURL,
		ImageBase64: req.ImageBase64,
		StoreName:   req.StoreName,
		Amount:      req.Amount,
	}
	if req.Date != nil {
		parsed, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{
				Success: false,
				Error:   "Validation failed",
				Fields:  map[string]string{"date": "Invalid date format"},
			})
			return
		}
		patch.Date = &parsed
	}

	updated, err := s.service.Update(r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

// handleDeleteReceipt deletes a receipt and returns the deleted record.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.Delete(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, deleted)
}

// handleSummary returns the list aggregates.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		slog.Error("Error computing summary", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}
	writeData(w, http.StatusOK, summary)
}

// handleGetFile serves a stored receipt image.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetFile(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleStaticCSS serves the CSS file.
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file.
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleStaticPlaceholder serves the placeholder receipt image.
func (s *Server) handleStaticPlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write(placeholderSVG)
}

func parseListQuery(r *http.Request) (ListQuery, error) {
	values := r.URL.Query()
	query := ListQuery{
		StoreName: values.Get("storeName"),
		SortBy:    values.Get("sortBy"),
		SortOrder: SortOrder(values.Get("sortOrder")),
		Page:      1,
		Limit:     10,
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return ListQuery{}, errors.New("invalid page parameter")
		}
		query.Page = page
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return ListQuery{}, errors.New("invalid limit parameter")
		}
		query.Limit = limit
	}
	if raw := values.Get("minAmount"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ListQuery{}, errors.New("invalid minAmount parameter")
		}
		query.MinAmount = &v
	}
	if raw := values.Get("maxAmount"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ListQuery{}, errors.New("invalid maxAmount parameter")
		}
		query.MaxAmount = &v
	}
	if raw := values.Get("startDate"); raw != "" {
		v, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListQuery{}, errors.New("invalid startDate parameter")
		}
		query.StartDate = &v
	}
	if raw := values.Get("endDate"); raw != "" {
		v, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListQuery{}, errors.New("invalid endDate parameter")
		}
		query.EndDate = &v
	}

	return query, nil
}
