// Package pricing computes what a participant or stall client owes.
//
// Event selections are priced as the sum of fees minus a flat combo discount
// that depends only on how many flash events were picked. Stall services use
// fixed unit prices and no discount.
package pricing

import (
	"fmt"
	"net/url"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
)

// Unit prices for stall services, in rupees.
const (
	TattooPrice           = 30
	NailPrice             = 30
	CaricaturePrice       = 80
	CaricatureCouplePrice = 100
)

// MaxNailHands is the nail count for both hands.
const MaxNailHands = 2

// Discount is a named flat reduction.
type Discount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

var comboTable = map[int]Discount{
	3: {Name: "COMBO3", Value: 10},
	4: {Name: "COMBO4", Value: 20},
	5: {Name: "COMBO5", Value: 30},
}

// FlashDiscount returns the combo discount for a number of flash events.
// Fewer than three earn nothing; more than five stay at the five-event tier.
func FlashDiscount(flashCount int) (Discount, bool) {
	if flashCount > 5 {
		flashCount = 5
	}
	d, ok := comboTable[flashCount]
	return d, ok
}

// Selection is a chosen set of events split by tier, in pick order.
type Selection struct {
	Standard []model.Event
	Flash    []model.Event
}

// Split partitions events by type, keeping their order.
func Split(events []model.Event) Selection {
	var sel Selection
	for _, e := range events {
		if e.IsFlash() {
			sel.Flash = append(sel.Flash, e)
		} else {
			sel.Standard = append(sel.Standard, e)
		}
	}
	return sel
}

// Events returns standard events followed by flash events.
func (s Selection) Events() []model.Event {
	out := make([]model.Event, 0, len(s.Standard)+len(s.Flash))
	out = append(out, s.Standard...)
	return append(out, s.Flash...)
}

// Len is the number of selected events.
func (s Selection) Len() int { return len(s.Standard) + len(s.Flash) }

// Quote is the settlement of an event selection. Payable is not floored at
// zero.
type Quote struct {
	Subtotal int       `json:"subtotal"`
	Discount *Discount `json:"discount,omitempty"`
	Payable  int       `json:"payable"`
}

// DiscountValue returns the discount amount, 0 when none applies.
func (q Quote) DiscountValue() int {
	if q.Discount == nil {
		return 0
	}
	return q.Discount.Value
}

// Price quotes a selection.
func Price(sel Selection) Quote {
	var q Quote
	for _, e := range sel.Standard {
		q.Subtotal += e.Fee
	}
	for _, e := range sel.Flash {
		q.Subtotal += e.Fee
	}
	if d, ok := FlashDiscount(len(sel.Flash)); ok {
		q.Discount = &d
	}
	q.Payable = q.Subtotal - q.DiscountValue()
	return q
}

// ServiceQuote is a priced stall order.
type ServiceQuote struct {
	Lines []model.ServiceLine `json:"lines"`
	Total int                 `json:"total"`
}

// PriceServices turns a stall order into line items. Non-positive counts are
// left out; an order with nothing left is invalid.
func PriceServices(order model.ServiceOrder) (ServiceQuote, error) {
	if order.Nail > MaxNailHands {
		return ServiceQuote{}, apperr.NewValidation("nail", "Nail count is 0, 1 or 2 hands")
	}

	var q ServiceQuote
	add := func(kind model.ServiceKind, count, price int) {
		if count <= 0 {
			return
		}
		line := model.ServiceLine{Kind: kind, UnitCount: count, UnitPrice: price}
		q.Lines = append(q.Lines, line)
		q.Total += line.Amount()
	}
	add(model.ServiceTattoo, order.Tattoo, TattooPrice)
	add(model.ServiceNail, order.Nail, NailPrice)
	caricature := CaricaturePrice
	if order.CaricatureCouple {
		caricature = CaricatureCouplePrice
	}
	add(model.ServiceCaricature, order.Caricature, caricature)

	if len(q.Lines) == 0 {
		return ServiceQuote{}, apperr.NewValidation("services", "Select at least one service")
	}
	return q, nil
}

// PaymentRequest is what the operator shows the payer: the amount and, for
// UPI, the string encoded into the QR code.
type PaymentRequest struct {
	Amount int               `json:"amount"`
	Mode   model.PaymentMode `json:"mode"`
	UPI    string            `json:"upi,omitempty"`
}

// UPIRequest builds the upi://pay deep link for a payee address and amount.
func UPIRequest(address string, amount int, label string) string {
	return fmt.Sprintf("upi://pay?pa=%s&am=%d&cu=INR&tn=%s", address, amount, url.QueryEscape(label))
}

// NewPaymentRequest fills in the UPI link only for UPI payments.
func NewPaymentRequest(mode model.PaymentMode, amount int, address, label string) PaymentRequest {
	req := PaymentRequest{Amount: amount, Mode: mode}
	if mode == model.PaymentUPI {
		req.UPI = UPIRequest(address, amount, label)
	}
	return req
}
