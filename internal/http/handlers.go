package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gastos/internal/core"
	"gastos/internal/services"
	"gastos/internal/storage"
)

type messageRequest struct {
	MessageID  int64     `json:"message_id"`
	ChatID     int64     `json:"chat_id"`
	AuthorName string    `json:"author_name"`
	AuthorID   int64     `json:"author_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

type batchEntryResponse struct {
	Index           int     `json:"index"`
	SourceMessageID int64   `json:"source_message_id"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	Quantity        int64   `json:"quantity"`
	UnitAmount      float64 `json:"unit_amount"`
	Category        string  `json:"category"`
	ReportedBy      string  `json:"reported_by"`
	SentAt          string  `json:"sent_at"`
}

type batchResponse struct {
	Token    string               `json:"token"`
	SyncedAt string               `json:"synced_at"`
	Entries  []batchEntryResponse `json:"entries"`
}

type recordResponse struct {
	ID              int64   `json:"id"`
	ExpenseDate     string  `json:"expense_date"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	Category        string  `json:"category"`
	RecordedAt      string  `json:"recorded_at"`
	ReportedBy      string  `json:"reported_by"`
	SourceMessageID *int64  `json:"source_message_id,omitempty"`
}

func toBatchResponse(b services.PendingBatch) batchResponse {
	resp := batchResponse{
		Token:    b.Token,
		SyncedAt: b.SyncedAt.Format(time.RFC3339),
		Entries:  make([]batchEntryResponse, len(b.Entries)),
	}
	for i, e := range b.Entries {
		resp.Entries[i] = batchEntryResponse{
			Index:           i,
			SourceMessageID: e.SourceMessageID,
			Description:     e.Description,
			Amount:          e.RawAmount.Reais(),
			Quantity:        e.Quantity,
			UnitAmount:      e.UnitAmount.Reais(),
			Category:        e.Category,
			ReportedBy:      e.AuthorName,
			SentAt:          e.SentAt.Format(time.RFC3339),
		}
	}
	return resp
}

func toRecordResponse(r core.ExpenseRecord) recordResponse {
	return recordResponse{
		ID:              r.ID,
		ExpenseDate:     r.ExpenseDate.Format(time.RFC3339),
		Description:     r.Description,
		Amount:          r.Amount.Reais(),
		Category:        r.Category,
		RecordedAt:      r.RecordedAt.Format(time.RFC3339),
		ReportedBy:      r.ReportedBy,
		SourceMessageID: r.SourceMessageID,
	}
}

// handleAppendMessage is the ingress boundary for the chat-transport
// listener. Duplicate message IDs return 200 with inserted=false.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inserted, err := s.svc.Ingest(r.Context(), core.ChatMessage{
		MessageID:  req.MessageID,
		ChatID:     req.ChatID,
		AuthorName: req.AuthorName,
		AuthorID:   req.AuthorID,
		Text:       req.Text,
		SentAt:     req.SentAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"inserted": inserted})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	replace := r.URL.Query().Get("replace") == "true"

	batch, err := s.svc.Sync(r.Context(), replace)
	if err != nil {
		if errors.Is(err, services.ErrPendingBatch) {
			writeError(w, http.StatusConflict,
				"a review batch is pending; repeat with replace=true to discard it")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(batch))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.svc.Pending()
	if !ok {
		writeError(w, http.StatusNotFound, "no pending review batch")
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(batch))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry index")
		return
	}

	var req struct {
		Token       string   `json:"token"`
		Description *string  `json:"description"`
		Amount      *float64 `json:"amount"`
		Category    *string  `json:"category"`
		ReportedBy  *string  `json:"reported_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := services.EntryPatch{
		Description: req.Description,
		Category:    req.Category,
		ReportedBy:  req.ReportedBy,
	}
	if req.Amount != nil {
		cents := core.MoneyFromReais(*req.Amount).Cents
		patch.AmountCents = &cents
	}

	entry, err := s.svc.Edit(req.Token, index, patch)
	if err != nil {
		s.writeBatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchEntryResponse{
		Index:           index,
		SourceMessageID: entry.SourceMessageID,
		Description:     entry.Description,
		Amount:          entry.RawAmount.Reais(),
		Quantity:        entry.Quantity,
		UnitAmount:      entry.UnitAmount.Reais(),
		Category:        entry.Category,
		ReportedBy:      entry.AuthorName,
		SentAt:          entry.SentAt.Format(time.RFC3339),
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inserted, err := s.svc.Commit(r.Context(), req.Token)
	if err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"committed": inserted})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.Cancel(req.Token); err != nil {
		s.writeBatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.ListRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]recordResponse, len(records))
	for i, rec := range records {
		out[i] = toRecordResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	if err := s.svc.DeleteRecord(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Balance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type categoryBalance struct {
		Name        string  `json:"name"`
		Allocated   float64 `json:"allocated"`
		Spent       float64 `json:"spent"`
		Remaining   float64 `json:"remaining"`
		Utilization float64 `json:"utilization_pct"`
	}
	resp := struct {
		Categories  []categoryBalance `json:"categories"`
		Allocated   float64           `json:"allocated"`
		Spent       float64           `json:"spent"`
		Remaining   float64           `json:"remaining"`
		Utilization float64           `json:"utilization_pct"`
	}{
		Categories:  make([]categoryBalance, len(report.ByCategory)),
		Allocated:   report.Allocated.Reais(),
		Spent:       report.Spent.Reais(),
		Remaining:   report.Remaining.Reais(),
		Utilization: report.Utilization,
	}
	for i, c := range report.ByCategory {
		resp.Categories[i] = categoryBalance{
			Name:        c.Name,
			Allocated:   c.Allocated.Reais(),
			Spent:       c.Spent.Reais(),
			Remaining:   c.Remaining.Reais(),
			Utilization: c.Utilization,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, unconsumed, err := s.svc.MessageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	watermark, err := s.svc.Watermark(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"uptime":              time.Since(s.started).String(),
		"messages_total":      total,
		"messages_unconsumed": unconsumed,
		"last_synced_at":      watermark.Format(time.RFC3339),
	})
}

// writeBatchError maps review-stage errors onto HTTP statuses.
func (s *Server) writeBatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNoBatch):
		writeError(w, http.StatusNotFound, "no pending review batch")
	case errors.Is(err, services.ErrBatchToken):
		writeError(w, http.StatusConflict, "review batch token mismatch")
	case errors.Is(err, services.ErrIndexRange):
		writeError(w, http.StatusNotFound, "review entry index out of range")
	case errors.Is(err, core.ErrUnknownCategory):
		writeError(w, http.StatusUnprocessableEntity, "unknown budget category")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
