package store

import "context"

// KV is the persistence surface used by the session, overlay and credential
// packages. *Store implements it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	Commit(ctx context.Context, b *Batch) error
}

var _ KV = (*Store)(nil)

// Persisted key names. These are shared with other clients of the same
// storage, so they must not change.
const (
	KeyLoginType         = "loginType"
	KeySessionID         = "sessionId"
	KeySessionIndividual = "sessionId_individual"
	KeySessionBusiness   = "sessionId_business"

	KeyOriginalSessionID     = "original_session_id"
	KeyOriginalLoginType     = "original_login_type"
	KeyNotificationSessionID = "notification_session_id"
	KeyNotificationCartID    = "notification_cart_id"
	KeyIsNotificationCart    = "is_notification_cart"
	KeyCurrentNegotiationID  = "current_negotiation_id"

	KeySelectedAddressID = "selected_address_id"

	// Owned by the external credential store.
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// NotificationKeys lists every key written by the notification overlay.
// Restore clears all of them in one pass.
var NotificationKeys = []string{
	KeyOriginalSessionID,
	KeyOriginalLoginType,
	KeyNotificationSessionID,
	KeyNotificationCartID,
	KeyIsNotificationCart,
	KeyCurrentNegotiationID,
}

// SessionKeyFor returns the mode-scoped session key, e.g. "sessionId_business".
func SessionKeyFor(loginType string) string {
	return KeySessionID + "_" + loginType
}
