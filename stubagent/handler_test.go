package stubagent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/procurechat/pochat/agentclient"
	"github.com/procurechat/pochat/chat"
	"github.com/procurechat/pochat/domain"
	"github.com/procurechat/pochat/session"
	"github.com/procurechat/pochat/store"
	"github.com/procurechat/pochat/stubagent"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog, err := store.NewSQLiteStore(":memory:")
	assert.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	e := echo.New()
	stubagent.NewHandler(catalog).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestFullConversationThroughStub(t *testing.T) {
	srv := newStubServer(t)
	ctx := context.Background()

	client := chat.New(
		agentclient.NewClient(srv.URL, 10*time.Second),
		session.NewStore(nil), nil, nil)

	// Opening message with counterparty and item mentions.
	err := client.SendMessage(ctx, "Order steel rods from Acme", []domain.Mention{
		{Type: domain.MentionCounterparty, ID: "cp_001", DisplayName: "Acme Industrial Supply"},
		{Type: domain.MentionItem, ID: "itm_001", DisplayName: "Steel Rod 12mm"},
	})
	assert.NoError(t, err)

	snap := client.Store().Snapshot()
	assert.NotEmpty(t, snap.SessionID)
	assert.NotNil(t, snap.PODraft.Counterparty)
	assert.Len(t, snap.PODraft.Items, 1)
	// The stub pulls unit and rate from the catalog.
	assert.Equal(t, "kg", snap.PODraft.Items[0].Unit)

	// The stub asks for payment terms.
	var clarID, clarField string
	for _, m := range snap.Messages {
		if c, ok := m.Payload.(*domain.Clarification); ok {
			clarID, clarField = m.ID, c.Field
			assert.True(t, c.Options[len(c.Options)-1].IsFigureItOut)
		}
	}
	assert.NotEmpty(t, clarID, "expected a terms clarification")

	assert.NoError(t, client.RespondToClarification(ctx, clarID, clarField, "trm_001"))
	snap = client.Store().Snapshot()
	assert.NotNil(t, snap.PODraft.Terms)
	assert.Equal(t, "Net 30", snap.PODraft.Terms.Name)

	// Billing address completes the draft; the stub emits a preview.
	assert.NoError(t, client.SendMessage(ctx, "Bill to head office", []domain.Mention{
		{Type: domain.MentionBillingAddress, ID: "adr_001", DisplayName: "Head Office, 14 Industrial Estate"},
	}))
	snap = client.Store().Snapshot()
	assert.True(t, snap.POReady)
	if assert.NotNil(t, snap.PODraft.Subtotal) {
		assert.Equal(t, 62.5, *snap.PODraft.Subtotal)
	}

	// Confirming submits the PO.
	assert.NoError(t, client.ConfirmPreview(ctx))
	snap = client.Store().Snapshot()
	assert.True(t, snap.POSubmitted)
	result, ok := snap.Messages[len(snap.Messages)-1].Payload.(*domain.SubmitResult)
	if assert.True(t, ok, "expected submit result") {
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.PONumber)
	}
}

func TestFigureItOutPicksDefaultTerms(t *testing.T) {
	srv := newStubServer(t)
	ctx := context.Background()

	client := chat.New(
		agentclient.NewClient(srv.URL, 10*time.Second),
		session.NewStore(nil), nil, nil)

	assert.NoError(t, client.SendMessage(ctx, "Order from Acme", []domain.Mention{
		{Type: domain.MentionCounterparty, ID: "cp_001", DisplayName: "Acme Industrial Supply"},
	}))

	snap := client.Store().Snapshot()
	var clarID, clarField string
	for _, m := range snap.Messages {
		if c, ok := m.Payload.(*domain.Clarification); ok {
			clarID, clarField = m.ID, c.Field
		}
	}
	assert.NotEmpty(t, clarID)

	assert.NoError(t, client.FigureItOut(ctx, clarID, clarField))
	assert.NotNil(t, client.Store().Snapshot().PODraft.Terms)
}

func TestSearchMasterEndpoint(t *testing.T) {
	srv := newStubServer(t)

	resp, err := http.Get(srv.URL + "/api/master/item?q=steel&limit=5")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []map[string]any `json:"data"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	if assert.Len(t, body.Data, 1) {
		assert.Equal(t, "Steel Rod 12mm", body.Data[0]["name"])
		assert.Equal(t, "kg", body.Data[0]["unit"])
	}

	resp, err = http.Get(srv.URL + "/api/master/warehouse?q=x")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
