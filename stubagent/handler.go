// Package stubagent implements a development chat backend that speaks the
// PO-assistant wire protocol: it streams SSE events over /api/chat and serves
// master-data lookups from the catalog store. It replays a canned PO-building
// script so the CLI and integration tests can run without the real agent.
package stubagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/procurechat/pochat/domain"
	"github.com/procurechat/pochat/store"
)

// conversation is the stub's per-session belief state.
type conversation struct {
	draft      domain.PODraft
	askedTerms bool
}

// Handler serves the stub chat and master-data endpoints.
type Handler struct {
	catalog store.Store

	mu            sync.Mutex
	conversations map[string]*conversation
}

// NewHandler creates a stub handler over the given catalog.
func NewHandler(catalog store.Store) *Handler {
	return &Handler{
		catalog:       catalog,
		conversations: make(map[string]*conversation),
	}
}

// RegisterRoutes registers the stub routes on the Echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/chat", h.Chat)
	e.GET("/api/master/:type", h.SearchMaster)
}

// SearchMaster handles master-data lookup.
// GET /api/master/:type?q=...&limit=...
func (h *Handler) SearchMaster(c echo.Context) error {
	entityType := domain.MentionType(c.Param("type"))
	if _, ok := domain.EntityTypeLabels[entityType]; !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown entity type"})
	}

	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entities, err := h.catalog.SearchEntities(c.Request().Context(), entityType, c.QueryParam("q"), limit)
	if err != nil {
		log.Printf("ERROR: master-data search failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "search failed"})
	}
	if entities == nil {
		entities = []store.Entity{}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": entities})
}

// Chat handles one chat turn and streams SSE events.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	sessionID := ""
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}

	h.mu.Lock()
	conv, ok := h.conversations[sessionID]
	if !ok {
		conv = &conversation{}
		h.conversations[sessionID] = conv
	}
	h.mu.Unlock()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	w := &eventWriter{w: c.Response().Writer, flusher: flusher}
	w.emit(domain.EventSession, domain.SessionEventData{SessionID: sessionID})

	h.mu.Lock()
	h.runTurn(c.Request().Context(), w, conv, &req)
	h.mu.Unlock()

	w.emit(domain.EventDone, map[string]any{})
	return nil
}

// runTurn applies one user message to the conversation and emits the
// resulting events.
func (h *Handler) runTurn(ctx context.Context, w *eventWriter, conv *conversation, req *domain.ChatRequest) {
	if strings.HasPrefix(req.Message, "Confirmed.") && h.draftReady(conv) {
		w.emitTokens("Submitting the purchase order now.")
		w.emit(domain.EventSubmitResult, domain.SubmitResult{
			Success:  true,
			POID:     "po_" + uuid.New().String()[:8],
			PONumber: fmt.Sprintf("PO-%s", strings.ToUpper(uuid.New().String()[:6])),
		})
		return
	}

	touched := h.applyMentions(ctx, conv, req.Mentions)
	if h.applyClarificationAnswer(ctx, conv, req.Message) {
		touched = true
	}

	if touched {
		w.emitTokens("Got it, I have updated the draft.")
		w.emit(domain.EventDraftUpdate, conv.draft)
	} else {
		w.emitTokens("Tell me about the order: mention a counterparty, items, terms and a billing address.")
	}

	if conv.draft.Counterparty != nil && conv.draft.Terms == nil && !conv.askedTerms {
		conv.askedTerms = true
		w.emit(domain.EventClarification, h.termsClarification(ctx))
		return
	}

	if h.draftReady(conv) {
		subtotal := 0.0
		for _, item := range conv.draft.Items {
			subtotal += item.Total
		}
		conv.draft.Subtotal = &subtotal
		w.emit(domain.EventPreview, conv.draft)
	}
}

// draftReady reports whether every required PO field is filled.
func (h *Handler) draftReady(conv *conversation) bool {
	d := &conv.draft
	return d.Counterparty != nil && len(d.Items) > 0 && d.Terms != nil && d.BillingAddress != nil
}

// applyMentions folds mentioned entities into the draft and reports whether
// anything changed.
func (h *Handler) applyMentions(ctx context.Context, conv *conversation, mentions []domain.Mention) bool {
	touched := false
	for _, m := range mentions {
		switch m.Type {
		case domain.MentionCounterparty:
			conv.draft.Counterparty = &domain.EntityRef{ID: m.ID, Name: m.DisplayName}
		case domain.MentionTerms:
			conv.draft.Terms = &domain.EntityRef{ID: m.ID, Name: m.DisplayName}
		case domain.MentionBillingAddress:
			conv.draft.BillingAddress = &domain.AddressRef{ID: m.ID, Text: m.DisplayName}
		case domain.MentionItem:
			conv.draft.Items = append(conv.draft.Items, h.lineItem(ctx, m))
		default:
			continue
		}
		touched = true
	}
	return touched
}

// lineItem builds a line for a mentioned item, pulling unit and rate from the
// catalog when available.
func (h *Handler) lineItem(ctx context.Context, m domain.Mention) domain.LineItem {
	item := domain.LineItem{ItemID: m.ID, Name: m.DisplayName, Qty: 1}
	entity, err := h.catalog.GetEntity(ctx, domain.MentionItem, m.ID)
	if err != nil || entity == nil || len(entity.Extra) == 0 {
		return item
	}
	var extra struct {
		Unit string  `json:"unit"`
		Rate float64 `json:"rate"`
	}
	if err := json.Unmarshal(entity.Extra, &extra); err != nil {
		return item
	}
	item.Unit = extra.Unit
	item.Rate = extra.Rate
	item.Total = item.Qty * item.Rate
	return item
}

// applyClarificationAnswer handles the synthesized clarification replies
// ("Selected <value> for terms", "Figure it out for terms").
func (h *Handler) applyClarificationAnswer(ctx context.Context, conv *conversation, message string) bool {
	if conv.draft.Terms != nil {
		return false
	}

	if strings.HasPrefix(message, "Figure it out for ") {
		entities, err := h.catalog.SearchEntities(ctx, domain.MentionTerms, "", 1)
		if err != nil || len(entities) == 0 {
			return false
		}
		conv.draft.Terms = &domain.EntityRef{ID: entities[0].ID, Name: entities[0].Name}
		return true
	}

	if rest, ok := strings.CutPrefix(message, "Selected "); ok {
		value, _, found := strings.Cut(rest, " for ")
		if !found {
			return false
		}
		entity, err := h.catalog.GetEntity(ctx, domain.MentionTerms, value)
		if err != nil || entity == nil {
			return false
		}
		conv.draft.Terms = &domain.EntityRef{ID: entity.ID, Name: entity.Name}
		return true
	}
	return false
}

// termsClarification builds the payment-terms question from the catalog.
func (h *Handler) termsClarification(ctx context.Context) domain.Clarification {
	clar := domain.Clarification{
		Question: "Which payment terms should this PO use?",
		Field:    "terms",
	}
	entities, err := h.catalog.SearchEntities(ctx, domain.MentionTerms, "", 5)
	if err != nil {
		log.Printf("WARN: failed to load terms options: %v", err)
	}
	for _, e := range entities {
		clar.Options = append(clar.Options, domain.ClarificationOption{Label: e.Name, Value: e.ID})
	}
	clar.Options = append(clar.Options, domain.ClarificationOption{
		Label:         "Figure it out",
		Value:         domain.FigureItOutValue,
		IsFigureItOut: true,
	})
	return clar
}

// eventWriter writes SSE records and flushes after each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// emit writes one SSE record with a JSON payload.
func (w *eventWriter) emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s event: %v", event, err)
		return
	}
	fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", event, data)
	w.flusher.Flush()
}

// emitTokens streams a sentence word by word the way the real agent does.
func (w *eventWriter) emitTokens(text string) {
	words := strings.Fields(text)
	for i, word := range words {
		token := word
		if i > 0 {
			token = " " + word
		}
		w.emit(domain.EventToken, domain.TokenEventData{Content: token})
	}
}
