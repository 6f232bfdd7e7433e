package database

// Collection names shared by the repositories and the index migrations.
const (
	CollectionCalls         = "calls"
	CollectionTransports    = "transports"
	CollectionVehicles      = "vehicles"
	CollectionDrivers       = "drivers"
	CollectionOperators     = "dispatch_operators"
	CollectionRoutes        = "routes"
	CollectionTrafficAlerts = "traffic_alerts"
	CollectionAuditLogs     = "audit_logs"
	collectionMigrations    = "migrations"
)
