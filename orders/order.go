package orders

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jrsteele09/go-storefront/internal/utils"
)

type Status string

const (
	StatusReceived   Status = "RECEIVED"
	StatusPickedUp   Status = "PICKED_UP"
	StatusOnDelivery Status = "ON_DELIVERY"
	StatusDelivered  Status = "DELIVERED"
	StatusLost       Status = "LOST"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Label is the status as shown to the shopper.
func (s Status) Label() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Slug is a lowercase, dash-separated form suitable for css classes or keys.
func (s Status) Slug() string {
	if s == "" {
		return "unknown"
	}
	return nonSlugChars.ReplaceAllString(strings.ToLower(string(s)), "-")
}

// Order is the order service's record of a placement. Timestamps are kept as
// the ISO strings the service sends; a missing one is "".
type Order struct {
	OrderID           int64   `json:"orderId"`
	Username          string  `json:"username"`
	ProductID         int64   `json:"productId"`
	Quantity          int     `json:"quantity"`
	TotalAmount       float64 `json:"totalAmount"`
	Status            Status  `json:"status"`
	BankTransactionID *string `json:"bankTransactionId,omitempty"`
	WarehouseIDs      []int64 `json:"warehouseIds,omitempty"`
	CreatedAt         string  `json:"createdAt,omitempty"`
	UpdatedAt         string  `json:"updatedAt,omitempty"`
}

// TransactionLabel is the bank transaction id shortened for display, or
// "Pending" before settlement.
func (o Order) TransactionLabel() string {
	tx := utils.Value(o.BankTransactionID)
	if tx == "" {
		return "Pending"
	}
	if len(tx) <= 10 {
		return tx
	}
	return tx[:10] + "…"
}

func (o Order) TotalLabel() string {
	return fmt.Sprintf("$%.2f", o.TotalAmount)
}

func (o Order) clone() Order {
	c := o
	if o.BankTransactionID != nil {
		c.BankTransactionID = utils.Ptr(*o.BankTransactionID)
	}
	c.WarehouseIDs = slices.Clone(o.WarehouseIDs)
	return c
}

// Request is the body of POST /api/orders.
type Request struct {
	Username    string  `json:"username"`
	ProductID   int64   `json:"productId"`
	Quantity    int     `json:"quantity"`
	TotalAmount float64 `json:"totalAmount"`
}
