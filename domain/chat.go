// Package domain defines the core domain models for the PO chat client.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MentionType identifies the master-data category a mention refers to.
type MentionType string

const (
	MentionCounterparty   MentionType = "counterparty"
	MentionItem           MentionType = "item"
	MentionTerms          MentionType = "terms"
	MentionBillingAddress MentionType = "billing_address"
)

// EntityTypeLabels maps master-data categories to display labels.
var EntityTypeLabels = map[MentionType]string{
	MentionCounterparty:   "Counterparties",
	MentionItem:           "Items",
	MentionTerms:          "Terms & Conditions",
	MentionBillingAddress: "Billing Addresses",
}

// FigureItOutValue is the sentinel answer that delegates a clarification
// decision back to the backend.
const FigureItOutValue = "figure_it_out"

// Mention is a reference to a master-data entity embedded in a user message.
type Mention struct {
	Type        MentionType    `json:"type"`
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ClarificationOption is one selectable answer to a clarification.
type ClarificationOption struct {
	Label         string `json:"label"`
	Value         string `json:"value"`
	IsFigureItOut bool   `json:"isFigureItOut"`
}

// Clarification is a backend-posed question that needs a user choice to proceed.
type Clarification struct {
	Question      string                `json:"question"`
	Field         string                `json:"field"`
	Options       []ClarificationOption `json:"options"`
	Answered      bool                  `json:"answered,omitempty"`
	SelectedValue string                `json:"selectedValue,omitempty"`
}

// SubmitResult is the terminal outcome of a PO submission attempt.
// Exactly one of the success group (POID/PONumber) or Error is populated.
type SubmitResult struct {
	Success  bool   `json:"success"`
	POID     string `json:"poId,omitempty"`
	PONumber string `json:"poNumber,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MessagePayload is the structured payload attached to an assistant message.
// A message carries at most one payload; plain text messages carry none.
type MessagePayload interface {
	messagePayload()
}

func (*Clarification) messagePayload() {}
func (*SubmitResult) messagePayload()  {}

// Message is one entry in the ordered, append-only message log.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Mentions  []Mention
	Timestamp time.Time
	Payload   MessagePayload
}

// NewMessageID generates a message identifier.
func NewMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}
