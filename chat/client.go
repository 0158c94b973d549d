// Package chat exposes the user-triggered intents that drive the chat
// pipeline: each intent opens one backend request and folds the resulting
// SSE events into the session store.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/procurechat/pochat/agentclient"
	"github.com/procurechat/pochat/domain"
	"github.com/procurechat/pochat/session"
	"github.com/procurechat/pochat/telemetry"
)

// ErrStreamInFlight is returned when an operation requires no open stream.
var ErrStreamInFlight = errors.New("a stream is in flight")

// Client dispatches user intents against the chat backend.
type Client struct {
	agent   *agentclient.Client
	store   *session.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New creates a chat client. Logger and metrics may be nil.
func New(agent *agentclient.Client, store *session.Store, logger *slog.Logger, metrics *telemetry.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		agent:   agent,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Store returns the session store backing this client.
func (c *Client) Store() *session.Store {
	return c.store
}

// SendMessage appends the user message optimistically, opens one chat stream
// and applies every event in arrival order. The in-flight flag is always
// cleared on exit; transport and pipeline failures land in the session error
// slot and are also returned.
func (c *Client) SendMessage(ctx context.Context, text string, mentions []domain.Mention) error {
	c.store.AddUserMessage(text, mentions)
	c.store.SetStreaming(true)
	c.store.SetError("")
	defer c.store.SetStreaming(false)

	c.metrics.StreamStarted(ctx)

	req := domain.NewChatRequest(c.store.Snapshot().SessionID, text, mentions)
	if err := c.agent.StreamChat(ctx, req, c.handleEvent); err != nil {
		c.metrics.StreamFailed(ctx)
		c.logger.Error("chat stream failed", "error", err)
		c.store.SetError(err.Error())
		return err
	}
	return nil
}

// RespondToClarification marks the clarification answered and sends a
// synthesized message with the choice. Marking is idempotent; guarding
// against double submission is the caller's job.
func (c *Client) RespondToClarification(ctx context.Context, messageID, field, value string) error {
	c.store.MarkClarificationAnswered(messageID, value)
	return c.SendMessage(ctx, fmt.Sprintf("Selected %s for %s", value, field), nil)
}

// FigureItOut delegates the clarification decision back to the backend.
func (c *Client) FigureItOut(ctx context.Context, messageID, field string) error {
	c.store.MarkClarificationAnswered(messageID, domain.FigureItOutValue)
	return c.SendMessage(ctx, fmt.Sprintf("Figure it out for %s", field), nil)
}

// ConfirmPreview asks the backend to submit the previewed PO. The submitted
// flag is only ever set by a submit_result event, not here.
func (c *Client) ConfirmPreview(ctx context.Context) error {
	return c.SendMessage(ctx, "Confirmed. Please submit the PO.", nil)
}

// Reset clears the session. Refused while a stream is in flight since a late
// event racing the reset would leave the store inconsistent.
func (c *Client) Reset() error {
	if c.store.Snapshot().Streaming {
		return ErrStreamInFlight
	}
	c.store.Reset()
	return nil
}

// handleEvent maps one SSE event to a state transition. A malformed payload
// for a recognized kind is surfaced and skipped rather than tearing down an
// otherwise healthy stream; unknown kinds are ignored entirely.
func (c *Client) handleEvent(evt agentclient.Event) error {
	c.metrics.EventReceived(context.Background(), evt.Event)

	switch evt.Event {
	case domain.EventSession:
		var data domain.SessionEventData
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.SetSessionID(data.SessionID)

	case domain.EventToken:
		var data domain.TokenEventData
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.AppendStreaming(data.Content)

	case domain.EventClarification:
		var data domain.Clarification
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.AddClarification(data)

	case domain.EventDraftUpdate:
		var data domain.PODraft
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.MergeDraft(&data)

	case domain.EventPreview:
		var data domain.PODraft
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.MergeDraft(&data)
		c.store.SetPOReady()

	case domain.EventSubmitResult:
		var data domain.SubmitResult
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		c.store.AddSubmitResult(data)

	case domain.EventError:
		var data domain.ErrorEventData
		if err := json.Unmarshal([]byte(evt.Data), &data); err != nil {
			return c.skipMalformed(evt.Event, err)
		}
		// Application-level condition, not a defect; more events may follow.
		c.store.SetError(data.Message)

	case domain.EventDone:
		c.store.FinalizeStreaming()

	default:
		c.logger.Debug("ignoring unknown event kind", "kind", evt.Event)
	}
	return nil
}

// skipMalformed records a protocol error in the session error slot and keeps
// the stream alive.
func (c *Client) skipMalformed(kind string, err error) error {
	c.logger.Warn("malformed event payload", "kind", kind, "error", err)
	c.store.SetError(fmt.Sprintf("malformed %s event: %v", kind, err))
	return nil
}
