package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/invoicecalc/internal/pricing"
	"github.com/Simplici0/invoicecalc/internal/workspace"
)

const maxBodyBytes = 1 << 20

// editOrder fixes the order in which field edits of one request are applied.
var editOrder = []pricing.Field{pricing.FieldName, pricing.FieldCostPrice, pricing.FieldMarkupPercentage}

// rawText accepts a JSON string or number and keeps its text so the
// calculators can parse it themselves.
type rawText string

func (t *rawText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = rawText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*t = rawText(n.String())
	return nil
}

type addItemRequest struct {
	Name             rawText `json:"name"`
	CostPrice        rawText `json:"costPrice"`
	MarkupPercentage rawText `json:"markupPercentage"`
}

type updateSplitRequest struct {
	CreatorMarkup       *rawText `json:"creatorMarkup"`
	SplitPercentage     *float64 `json:"splitPercentage"`
	SplitPercentageText *rawText `json:"splitPercentageText"`
}

type mutationResponse struct {
	Applied  bool               `json:"applied"`
	Snapshot workspace.Snapshot `json:"snapshot"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ws.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, err, "failed to load snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, applied, err := s.ws.AddItem(r.Context(), string(req.Name), string(req.CostPrice), string(req.MarkupPercentage))
	if err != nil {
		s.internalError(w, err, "failed to add item")
		return
	}
	status := http.StatusOK
	if applied {
		status = http.StatusCreated
	}
	writeJSON(w, status, mutationResponse{Applied: applied, Snapshot: snap})
}

func (s *server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req map[string]rawText
	if !s.decode(w, r, &req) {
		return
	}

	edits := make([]pricing.Edit, 0, len(req))
	for _, f := range editOrder {
		if v, ok := req[string(f)]; ok {
			edits = append(edits, pricing.Edit{Field: f, Value: string(v)})
		}
	}
	for key := range req {
		if _, ok := pricing.ParseField(key); !ok {
			s.logger.Debug().Str("field", key).Str("item_id", id).Msg("ignoring unknown item field")
		}
	}

	snap, applied, err := s.ws.UpdateItem(r.Context(), id, edits...)
	if err != nil {
		s.internalError(w, err, "failed to update item")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Applied: applied, Snapshot: snap})
}

func (s *server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	snap, applied, err := s.ws.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err, "failed to delete item")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Applied: applied, Snapshot: snap})
}

func (s *server) handleUpdateSplit(w http.ResponseWriter, r *http.Request) {
	var req updateSplitRequest
	if !s.decode(w, r, &req) {
		return
	}

	var in workspace.SplitInput
	if req.CreatorMarkup != nil {
		v := string(*req.CreatorMarkup)
		in.CreatorMarkup = &v
	}
	if req.SplitPercentage != nil {
		in.Percentage = req.SplitPercentage
	}
	if req.SplitPercentageText != nil {
		v := string(*req.SplitPercentageText)
		in.PercentageText = &v
	}

	snap, applied, err := s.ws.UpdateSplit(r.Context(), in)
	if err != nil {
		s.internalError(w, err, "failed to update split")
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Applied: applied, Snapshot: snap})
}

func (s *server) handleInvoiceText(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ws.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, err, "failed to load snapshot")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(renderInvoiceText(snap, s.currency)))
}

// decode reads a JSON body into v, answering 400 itself when it cannot.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body is too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body must be a JSON object")
		return false
	}
	return true
}

func (s *server) internalError(w http.ResponseWriter, err error, message string) {
	s.logger.Error().Err(err).Msg(message)
	writeJSONError(w, http.StatusInternalServerError, "internal", message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
