// Package model defines the value types shared by the session, overlay and
// gateway packages.
//
// Ownership:
//   - SessionIdentity is owned by session.Store and persisted per LoginType.
//   - NotificationContext is owned by overlay.Overlay while a notification
//     cart shadows the normal session pointer.
//   - Cart and CartItem are server-owned snapshots. Clients hold them for one
//     render cycle and re-fetch after every mutation.
//
// Canonical JSON helpers (MarshalCanonical) give deterministic encodings for
// golden request traces.
package model
