package domain

// Intent is the label returned by the classifier
type Intent string

const (
	IntentRiderOrder  Intent = "rider-order"
	IntentDriverOrder Intent = "driver-order"
	IntentOther       Intent = "other"
)

// ParseIntent maps a classifier label to an Intent.
// The snake_case labels are accepted for prompts written against the older format.
func ParseIntent(label string) (Intent, bool) {
	switch label {
	case "rider-order", "passenger_order", "rider_order":
		return IntentRiderOrder, true
	case "driver-order", "driver_order":
		return IntentDriverOrder, true
	case "other":
		return IntentOther, true
	}
	return IntentOther, false
}

// IsOrder reports whether the intent is one of the order intents
func (i Intent) IsOrder() bool {
	return i == IntentRiderOrder || i == IntentDriverOrder
}

// FailureReason explains why an external call degraded
type FailureReason string

const (
	FailureNone            FailureReason = ""
	FailureTimeout         FailureReason = "timeout"
	FailureInvalidResponse FailureReason = "invalid-response"
	FailureTransport       FailureReason = "transport-error"
	FailureInvalidControl  FailureReason = "invalid-control"
)

// OrderFields are the attributes extracted from an order message
type OrderFields struct {
	FromLocation string `json:"from_location,omitempty"`
	ToLocation   string `json:"to_location,omitempty"`
	Time         string `json:"time,omitempty"`
	Passengers   string `json:"passengers,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Price        string `json:"price,omitempty"`
	CarInfo      string `json:"car_info,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Classification is the outcome of one classifier call.
// Fields is nil when nothing was extracted.
type Classification struct {
	Intent     Intent
	Confidence float64
	Fields     *OrderFields
	Failure    FailureReason
}

// Failed returns the degraded classification for a failed call
func Failed(reason FailureReason) Classification {
	return Classification{Intent: IntentOther, Confidence: 0, Failure: reason}
}

// Accepted reports whether the classification counts as an order
func (c Classification) Accepted(threshold float64) bool {
	return c.Failure == FailureNone && c.Intent.IsOrder() && c.Confidence >= threshold
}
