package domain

import (
	"fmt"
	"strings"
)

// TargetSelector selects which device tokens are eligible for a firing.
type TargetSelector string

const (
	// SelectorAll targets every registered token with a known owner.
	SelectorAll TargetSelector = "ALL"
	// SelectorAllowAlarm targets tokens whose owner opted into alarms.
	// The opt-in flag is not stored yet, so resolution degrades to ALL.
	SelectorAllowAlarm TargetSelector = "ALLOW_ALARM"
)

func (s TargetSelector) String() string { return string(s) }

func (s TargetSelector) IsValid() bool {
	switch s {
	case SelectorAll, SelectorAllowAlarm:
		return true
	}
	return false
}

func ParseTargetSelectorFromString(s string) (TargetSelector, error) {
	sel := TargetSelector(strings.ToUpper(strings.TrimSpace(s)))
	if !sel.IsValid() {
		return "", fmt.Errorf("%w: invalid target selector %q", ErrValidation, s)
	}
	return sel, nil
}

// Content limits (in characters) enforced before handing off to the gateway.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 2000
)

// Payload is the notification content shared by every batch of one firing.
type Payload struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}

	if titleLen := len([]rune(p.Title)); titleLen > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLength, titleLen)
	}
	if bodyLen := len([]rune(p.Body)); bodyLen > MaxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLength, bodyLen)
	}

	return nil
}
