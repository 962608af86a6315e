package domain

import (
	"errors"
	"fmt"
)

// ControlKind identifies an interactive control attached to a notice
type ControlKind string

const (
	ControlProfile  ControlKind = "profile"
	ControlDial     ControlKind = "dial"
	ControlOriginal ControlKind = "original"
	ControlBlock    ControlKind = "block"
)

// BlockAction is the callback action carried by the block-sender control
const BlockAction = "block_user"

// Control is a button on a delivered notice.
// URL controls open a link, value controls post Value back to the callback endpoint.
type Control struct {
	Kind  ControlKind
	Label string
	URL   string
	Value map[string]string
}

// Notice is a destination-ready order message
type Notice struct {
	Text     string
	Controls []Control
}

// WithoutControls returns a copy of the notice with no controls
func (n Notice) WithoutControls() Notice {
	return Notice{Text: n.Text}
}

// DeliveryError is a failed send to one destination
type DeliveryError struct {
	RoomID string
	Reason FailureReason
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %s: %v", e.RoomID, e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsInvalidControl reports whether err is a delivery rejected for its controls
func IsInvalidControl(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Reason == FailureInvalidControl
}

// DeliveryResult is the outcome for one destination
type DeliveryResult struct {
	RoomID       string
	Delivered    bool
	StrippedCtrl bool // delivered after retrying without controls
	Err          error
}
