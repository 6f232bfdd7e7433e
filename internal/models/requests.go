package models

// TransitionRequest moves a call or transport to its next status. A repeated
// RequestID is treated as a duplicate and ignored.
type TransitionRequest struct {
	Status    string `json:"status" validate:"required"`
	Actor     string `json:"actor" validate:"required"`
	Note      string `json:"note"`
	RequestID string `json:"request_id"`
	Outcome   string `json:"outcome"`
}

type DispatchRequest struct {
	Actor     string `json:"actor" validate:"required"`
	RequestID string `json:"request_id"`
}

type AcknowledgeRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type VehicleStatusRequest struct {
	Status VehicleStatus `json:"status" validate:"required,oneof=active inactive maintenance"`
	Actor  string        `json:"actor" validate:"required"`
	Reason string        `json:"reason"`
}

// DriverStatusRequest cannot put a driver on duty; that only happens when
// the matcher reserves them.
type DriverStatusRequest struct {
	Status DriverStatus `json:"status" validate:"required,oneof=active off_duty on_leave suspended"`
	Actor  string       `json:"actor" validate:"required"`
	Reason string       `json:"reason"`
}

type CrewRequest struct {
	DriverID string `json:"driver_id" validate:"required"`
	Actor    string `json:"actor"`
}

type LocationUpdateRequest struct {
	Location Location `json:"location"`
}

type DeviceRequest struct {
	Token    string         `json:"token" validate:"required"`
	Platform DevicePlatform `json:"platform" validate:"required,oneof=android ios"`
}

type RecomputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveAlertRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// DispatchStats summarises calls and transports for the console.
type DispatchStats struct {
	Calls             CallStats                 `json:"calls"`
	Transports        map[TransportStatus]int64 `json:"transports"`
	PendingQueue      int64                     `json:"pending_queue"`
	OverdueCalls      int64                     `json:"overdue_calls"`
	OverdueTransports int64                     `json:"overdue_transports"`
}
