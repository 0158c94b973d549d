package domain

// EntityRef is a named master-data reference held by the draft.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AddressRef is a billing address reference; addresses carry free text
// rather than a display name.
type AddressRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// LineItem is one purchase order line.
type LineItem struct {
	ItemID string  `json:"item_id"`
	Name   string  `json:"name"`
	Qty    float64 `json:"qty,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Total  float64 `json:"total,omitempty"`
}

// PODraft is the progressively assembled purchase order. Fields are
// nillable so that a partial update can distinguish "absent" from "empty".
type PODraft struct {
	Counterparty   *EntityRef  `json:"counterparty,omitempty"`
	Items          []LineItem  `json:"items,omitempty"`
	Terms          *EntityRef  `json:"terms,omitempty"`
	BillingAddress *AddressRef `json:"billing_address,omitempty"`
	Subtotal       *float64    `json:"subtotal,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
}

// Merge applies a partial draft update: every field present in the incoming
// draft replaces the held field wholesale, absent fields are left untouched.
// The backend resends the full current value per touched top-level field
// (including the complete items list), so no field-level reconciliation
// happens here.
func (d *PODraft) Merge(in *PODraft) {
	if in == nil {
		return
	}
	if in.Counterparty != nil {
		d.Counterparty = in.Counterparty
	}
	if in.Items != nil {
		d.Items = in.Items
	}
	if in.Terms != nil {
		d.Terms = in.Terms
	}
	if in.BillingAddress != nil {
		d.BillingAddress = in.BillingAddress
	}
	if in.Subtotal != nil {
		d.Subtotal = in.Subtotal
	}
	if in.Notes != nil {
		d.Notes = in.Notes
	}
}

// Empty reports whether no draft field has been populated yet.
func (d *PODraft) Empty() bool {
	return d.Counterparty == nil && d.Items == nil && d.Terms == nil &&
		d.BillingAddress == nil && d.Subtotal == nil && d.Notes == nil
}
