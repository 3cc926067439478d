package payments

import "time"

// Method is how the client pays.
type Method string

const (
	MethodInstantPayment Method = "instant_payment"
	MethodCard           Method = "card"
	MethodPayOnSite      Method = "pay_on_site"
	MethodCash           Method = "cash"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodInstantPayment, MethodCard, MethodPayOnSite, MethodCash:
		return true
	}
	return false
}

// InPerson reports whether the method settles at the shop, with no gateway step.
func (m Method) InPerson() bool {
	return m == MethodPayOnSite || m == MethodCash
}

// Status is the payment lifecycle state. Confirmed is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPayOnSite Status = "pay_on_site"
	StatusCancelled Status = "cancelled"
)

// Payment is the single payment attached to a booking. AmountCents is a
// snapshot of the service price when the payment was created.
type Payment struct {
	ID                string     `json:"id"`
	BookingID         string     `json:"booking_id"`
	Method            Method     `json:"method"`
	AmountCents       int64      `json:"amount_cents"`
	Status            Status     `json:"status"`
	Provider          string     `json:"provider,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
	PayCode           string     `json:"pay_code,omitempty"`
	CheckoutURL       string     `json:"checkout_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
}

// StatusLabel maps a payment state to the text shown in notifications.
func StatusLabel(status Status, method Method) string {
	switch status {
	case StatusConfirmed:
		switch method {
		case MethodInstantPayment:
			return "paid (PIX)"
		case MethodCard:
			return "paid (card)"
		default:
			return "paid on site"
		}
	case StatusPayOnSite:
		return "pay on site"
	case StatusPending:
		return "awaiting payment"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
