package utils

import "time"

// Application Constants
const (
	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Routing
	MaxWaypoints            = 5
	DefaultAverageSpeedKMH  = 50.0
	DefaultAlertRadiusKM    = 1.0
	DefaultAlertTTL         = 24 * time.Hour
	AlertExpiryScanInterval = time.Minute

	// Dispatch
	DefaultReservationAttempts = 5
	DefaultTransitionRetries   = 5
	DefaultSweepInterval       = 60 * time.Second
	DefaultMaxEscalationLevel  = 3

	// Notification
	NotificationRetryAttempts = 3
	NotificationRetryDelay    = 200 * time.Millisecond
	NotificationTimeout       = 30 * time.Second
)

// ID prefixes, formatted as <PREFIX>-<epochMillis>-<4-digit-sequence>.
const (
	IDPrefixCall      = "CALL"
	IDPrefixTransport = "TRANS"
	IDPrefixRoute     = "ROUTE"
	IDPrefixAlert     = "ALERT"
	IDPrefixOperator  = "OP"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInternalServer   = "internal server error"
	ErrValidationFailed = "validation failed"
	ErrNoCapacity       = "no capacity available"
)

// Cache Keys
const (
	CacheSequencePrefix  = "dispatch:seq:"
	CachePendingQueueKey = "dispatch:pending_calls"
	CacheVehiclePrefix   = "vehicle:"
)

// Pub/sub channels
const (
	ChannelAuditEvents = "dispatch:audit"
)

// Event Types
const (
	EventCallReceived     = "call_received"
	EventCallDispatched   = "call_dispatched"
	EventStatusChanged    = "status_changed"
	EventVehicleReserved  = "vehicle_reserved"
	EventNoCapacity       = "no_capacity"
	EventRouteRecomputed  = "route_recomputed"
	EventOperatorAssigned = "operator_assigned"
)

// Geographic Constants
const (
	EarthRadiusKM = 6371.0
)
