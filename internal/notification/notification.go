// Package notification decodes the push payload that redirects the cart
// context. Delivery is out of scope; only the payload body is consumed.
package notification

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/roach88/cartctx/internal/fault"
)

// Payload types that carry a cart reference. An empty type is accepted as
// TypeCart.
const (
	TypeCart        = "cart"
	TypeNegotiation = "negotiation"
)

// Payload is a decoded cart notification.
type Payload struct {
	Type          string `json:"type"`
	CartID        string `json:"cartId"`
	SessionID     string `json:"sessionId"`
	NegotiationID string `json:"negotiationId,omitempty"`
}

type wire struct {
	Payload
	Data json.RawMessage `json:"data"`
}

// Parse decodes raw. The fields may sit at the top level or under "data",
// which may itself be a JSON-encoded string (data-only push messages carry
// string values). Missing ids are validation errors.
func Parse(raw []byte) (Payload, error) {
	const op = "notification.parse"

	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Payload{}, fault.Validation(op, "malformed payload: "+err.Error())
	}

	p := w.Payload
	if nested, ok, err := decodeData(w.Data); err != nil {
		return Payload{}, fault.Validation(op, "malformed data: "+err.Error())
	} else if ok {
		p = merge(p, nested)
	}

	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.CartID = strings.TrimSpace(p.CartID)
	p.SessionID = strings.TrimSpace(p.SessionID)
	p.NegotiationID = strings.TrimSpace(p.NegotiationID)

	if p.Type != "" && p.Type != TypeCart && p.Type != TypeNegotiation {
		return Payload{}, fault.Validation(op, "unsupported notification type "+p.Type)
	}
	if p.CartID == "" {
		return Payload{}, fault.Validation(op, "cartId is required")
	}
	if p.SessionID == "" {
		return Payload{}, fault.Validation(op, "sessionId is required")
	}
	return p, nil
}

func decodeData(raw json.RawMessage) (Payload, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Payload{}, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Payload{}, false, err
		}
		raw = []byte(s)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, false, err
	}
	return p, true, nil
}

// merge fills empty fields of top from nested.
func merge(top, nested Payload) Payload {
	if top.Type == "" {
		top.Type = nested.Type
	}
	if top.CartID == "" {
		top.CartID = nested.CartID
	}
	if top.SessionID == "" {
		top.SessionID = nested.SessionID
	}
	if top.NegotiationID == "" {
		top.NegotiationID = nested.NegotiationID
	}
	return top
}
