package model

// Totals mirrors the backend's computed cart totals. The client never
// recomputes them.
type Totals struct {
	Subtotal        float64 `json:"subtotal"`
	Discount        float64 `json:"discount"`
	Shipping        float64 `json:"shipping"`
	Tax             float64 `json:"tax"`
	MarketplaceFees float64 `json:"marketplaceFees"`
	TotalPayable    float64 `json:"totalPayable"`
}

// CartItem is one line of a server cart snapshot.
// Uniqueness within a cart is defined by Key().
type CartItem struct {
	ID            string   `json:"id,omitempty"`
	ProductID     string   `json:"productId"`
	VariantID     *string  `json:"variantId"`
	Quantity      int      `json:"quantity"`
	Price         float64  `json:"price"`
	OriginalPrice float64  `json:"originalPrice,omitempty"`
	TierPrice     *float64 `json:"tierPrice,omitempty"`
	Name          string   `json:"name,omitempty"`
}

// ItemKey identifies a line item: (productId, variantId|null).
type ItemKey struct {
	ProductID  string
	VariantID  string
	HasVariant bool
}

// Key returns the identity key of the item.
func (it CartItem) Key() ItemKey {
	if it.VariantID == nil {
		return ItemKey{ProductID: it.ProductID}
	}
	return ItemKey{ProductID: it.ProductID, VariantID: *it.VariantID, HasVariant: true}
}

// Cart is a transient server snapshot.
type Cart struct {
	ID         string     `json:"id,omitempty"`
	Items      []CartItem `json:"items"`
	Totals     Totals     `json:"totals"`
	CouponCode string     `json:"couponCode,omitempty"`
}

// NewEmptyCart constructs the empty cart used as the fallback after
// not-found and auth-expired recovery. It never performs I/O.
func NewEmptyCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

// Find returns the item with the given key, or nil.
func (c *Cart) Find(key ItemKey) *CartItem {
	if c == nil {
		return nil
	}
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return &c.Items[i]
		}
	}
	return nil
}

// ItemCount sums quantities across all lines.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Normalize guarantees Items is never nil so encoders emit [] instead of null.
func (c *Cart) Normalize() *Cart {
	if c == nil {
		return NewEmptyCart()
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	return c
}

// PriceTier is one quantity band of business tier pricing.
type PriceTier struct {
	MinQuantity int     `json:"minQuantity"`
	MaxQuantity *int    `json:"maxQuantity,omitempty"`
	Price       float64 `json:"price"`
}

// TierPricing is the backend-computed quantity pricing for a product.
type TierPricing struct {
	ProductID string      `json:"productId"`
	Tiers     []PriceTier `json:"tiers"`
}

// NegotiationRequest asks the backend to open a price negotiation.
type NegotiationRequest struct {
	ProductID     string  `json:"productId"`
	VariantID     *string `json:"variantId"`
	Quantity      int     `json:"quantity"`
	ProposedPrice float64 `json:"proposedPrice"`
	Note          string  `json:"note,omitempty"`
}

// Negotiation is the backend's view of a negotiation.
type Negotiation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	CartID string `json:"cartId,omitempty"`
}
