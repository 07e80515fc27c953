package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrMalformed is returned for text payloads that are not valid JSON
	// objects or whose recognized fields have the wrong type.
	ErrMalformed = errors.New("router: malformed payload")

	// ErrUnrecognized is returned for well-formed JSON of an unknown shape.
	ErrUnrecognized = errors.New("router: unrecognized payload")
)

// Kind identifies an Event variant.
type Kind int

const (
	KindMenuSnapshot Kind = iota + 1
	KindCartLineAdded
	KindOrderSubmitted
)

func (k Kind) String() string {
	switch k {
	case KindMenuSnapshot:
		return "menu_snapshot"
	case KindCartLineAdded:
		return "cart_line_added"
	case KindOrderSubmitted:
		return "order_submitted"
	default:
		return "unknown"
	}
}

// Event is a protocol event produced from one inbound text payload.
// The concrete type is one of MenuSnapshot, CartLineAdded or OrderSubmitted.
type Event interface {
	Kind() Kind
	event()
}

// MenuItem is one entry of a menu snapshot.
type MenuItem struct {
	ID         Value  `json:"id"`
	Name       string `json:"name"`
	Price      Amount `json:"price"`
	GlutenFree bool   `json:"is_gluten_free"`
	Available  *bool  `json:"is_available,omitempty"`
}

// IsAvailable reports availability. Items without the field are available.
func (m MenuItem) IsAvailable() bool { return m.Available == nil || *m.Available }

// MenuSnapshot replaces the whole menu.
type MenuSnapshot struct {
	Items []MenuItem
}

// CartLineAdded adds Qty units of Item to the cart.
type CartLineAdded struct {
	Item string
	Qty  int
}

// OrderSubmitted confirms the order.
type OrderSubmitted struct {
	OrderID string
	Total   float64
}

func (MenuSnapshot) Kind() Kind   { return KindMenuSnapshot }
func (CartLineAdded) Kind() Kind  { return KindCartLineAdded }
func (OrderSubmitted) Kind() Kind { return KindOrderSubmitted }

func (MenuSnapshot) event()   {}
func (CartLineAdded) event()  {}
func (OrderSubmitted) event() {}

// Value is a JSON scalar kept as text: strings are taken verbatim, numbers
// in their literal form.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a string or number: %w", err)
	}
	*v = Value(n.String())
	return nil
}

// Amount is a money value that arrives either as a JSON number or as a
// numeric string such as "12.50".
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// quantity is a whole count that may arrive as 2, 2.0 or "2".
type quantity int

func (q *quantity) UnmarshalJSON(data []byte) error {
	var a Amount
	if err := a.UnmarshalJSON(data); err != nil {
		return err
	}
	f := float64(a)
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("qty %v is not a whole number", f)
	}
	*q = quantity(f)
	return nil
}

// payload is the union of every recognized inbound shape.
type payload struct {
	Menu    []MenuItem `json:"menu"`
	Status  *string    `json:"status"`
	Item    string     `json:"item"`
	Qty     *quantity  `json:"qty"`
	OrderID Value      `json:"order_id"`
	Total   *Amount    `json:"total"`
}

// Parse classifies one text payload. A present "menu" list wins over a
// status field.
func Parse(data []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if p.Menu != nil {
		return MenuSnapshot{Items: p.Menu}, nil
	}
	if p.Status == nil {
		return nil, ErrUnrecognized
	}

	switch *p.Status {
	case "added":
		if p.Item == "" {
			return nil, fmt.Errorf("%w: added without item", ErrMalformed)
		}
		qty := 1
		if p.Qty != nil && *p.Qty != 0 {
			qty = int(*p.Qty)
		}
		if qty < 1 {
			return nil, fmt.Errorf("%w: qty %d", ErrMalformed, qty)
		}
		return CartLineAdded{Item: p.Item, Qty: qty}, nil

	case "submitted":
		ev := OrderSubmitted{OrderID: string(p.OrderID)}
		if p.Total != nil {
			ev.Total = float64(*p.Total)
		}
		return ev, nil

	default:
		return nil, ErrUnrecognized
	}
}
