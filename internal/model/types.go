package model

import "strings"

// LoginType is the account mode a session belongs to.
// Each mode has independently scoped session persistence.
type LoginType string

const (
	LoginIndividual LoginType = "individual"
	LoginBusiness   LoginType = "business"
)

// DefaultLoginType is used whenever no mode has been persisted.
const DefaultLoginType = LoginIndividual

// ParseLoginType maps a persisted or user-supplied value onto a LoginType.
// Returns false for anything other than "individual" or "business".
func ParseLoginType(s string) (LoginType, bool) {
	switch LoginType(strings.ToLower(strings.TrimSpace(s))) {
	case LoginIndividual:
		return LoginIndividual, true
	case LoginBusiness:
		return LoginBusiness, true
	default:
		return "", false
	}
}

// Valid reports whether lt is a known mode.
func (lt LoginType) Valid() bool {
	return lt == LoginIndividual || lt == LoginBusiness
}

// String implements fmt.Stringer.
func (lt LoginType) String() string {
	return string(lt)
}

// SessionIdentity describes who every outgoing cart request is made for.
//
// IsAuthenticated is a token-presence check only. Token freshness is handled
// reactively when the backend answers 401.
type SessionIdentity struct {
	LoginType       LoginType `json:"loginType"`
	SessionID       string    `json:"sessionId"`
	IsAuthenticated bool      `json:"isAuthenticated"`
}

// NotificationContext is the persisted record of an active notification overlay.
//
// OriginalSessionID may be "" while active: that sentinel means no session
// existed when the overlay was entered. Restore synthesizes a new guest session
// in that case.
type NotificationContext struct {
	CartID             string    `json:"cartId"`
	SessionID          string    `json:"sessionId"`
	NegotiationID      string    `json:"negotiationId,omitempty"`
	IsNotificationCart bool      `json:"isNotificationCart"`
	OriginalSessionID  string    `json:"originalSessionId"`
	OriginalLoginType  LoginType `json:"originalLoginType,omitempty"`
}
