package routes

import (
	"github.com/gin-gonic/gin"

	handlers "medidispatch/internal/handlers/shared"
)

type Handlers struct {
	Calls      *handlers.CallHandler
	Transports *handlers.TransportHandler
	Fleet      *handlers.FleetHandler
	Operators  *handlers.OperatorHandler
	Routes     *handlers.RouteHandler
	Alerts     *handlers.AlertHandler
	Stats      *handlers.StatsHandler
}

// SetupDispatchRoutes sets up the dispatch console API
func SetupDispatchRoutes(r *gin.RouterGroup, h Handlers) {
	calls := r.Group("/calls")
	{
		calls.POST("", h.Calls.CreateCall)
		calls.GET("", h.Calls.ListCalls)
		calls.GET("/:id", h.Calls.GetCall)
		calls.PUT("/:id/status", h.Calls.TransitionCall)
		calls.POST("/:id/dispatch", h.Calls.DispatchCall)
		calls.GET("/:id/candidates", h.Calls.Candidates)
		calls.POST("/:id/acknowledge", h.Calls.Acknowledge)
		calls.POST("/:id/vitals", h.Calls.RecordVitals)
		calls.POST("/:id/interventions", h.Calls.RecordIntervention)
		calls.POST("/:id/medications", h.Calls.RecordMedication)
		calls.GET("/:id/audit", h.Calls.AuditTrail)
	}

	transports := r.Group("/transports")
	{
		transports.POST("", h.Transports.CreateTransport)
		transports.GET("", h.Transports.ListTransports)
		transports.GET("/:id", h.Transports.GetTransport)
		transports.PUT("/:id/status", h.Transports.TransitionTransport)
		transports.POST("/:id/dispatch", h.Transports.DispatchTransport)
		transports.GET("/:id/candidates", h.Transports.Candidates)
		transports.POST("/:id/acknowledge", h.Transports.Acknowledge)
		transports.POST("/:id/vitals", h.Transports.RecordVitals)
		transports.POST("/:id/interventions", h.Transports.RecordIntervention)
		transports.POST("/:id/medications", h.Transports.RecordMedication)
		transports.GET("/:id/audit", h.Transports.AuditTrail)
	}

	vehicles := r.Group("/vehicles")
	{
		vehicles.POST("", h.Fleet.RegisterVehicle)
		vehicles.GET("", h.Fleet.ListVehicles)
		vehicles.GET("/:id", h.Fleet.GetVehicle)
		vehicles.PUT("/:id/location", h.Fleet.UpdateVehicleLocation)
		vehicles.PUT("/:id/status", h.Fleet.SetVehicleStatus)
		vehicles.POST("/:id/crew", h.Fleet.AssignCrew)
	}

	drivers := r.Group("/drivers")
	{
		drivers.POST("", h.Fleet.RegisterDriver)
		drivers.GET("", h.Fleet.ListDrivers)
		drivers.GET("/:id", h.Fleet.GetDriver)
		drivers.PUT("/:id/status", h.Fleet.SetDriverStatus)
		drivers.PUT("/:id/device", h.Fleet.UpdateDriverDevice)
	}

	operators := r.Group("/operators")
	{
		operators.POST("", h.Operators.Register)
		operators.GET("", h.Operators.ListOperators)
		operators.GET("/queue", h.Operators.PendingCalls)
		operators.POST("/queue/drain", h.Operators.DrainQueue)
		operators.GET("/:id", h.Operators.GetOperator)
		operators.PUT("/:id/status", h.Operators.UpdateStatus)
		operators.DELETE("/:id", h.Operators.Offboard)
	}

	routes := r.Group("/routes")
	{
		routes.POST("", h.Routes.PlanRoute)
		routes.GET("", h.Routes.ListRoutes)
		routes.GET("/:id", h.Routes.GetRoute)
		routes.POST("/:id/recompute", h.Routes.Recompute)
	}

	alerts := r.Group("/alerts")
	{
		alerts.POST("", h.Alerts.CreateAlert)
		alerts.GET("", h.Alerts.ListAlerts)
		alerts.POST("/expire", h.Alerts.ExpireAlerts)
		alerts.GET("/:id", h.Alerts.GetAlert)
		alerts.PUT("/:id/resolve", h.Alerts.ResolveAlert)
	}

	stats := r.Group("/stats")
	{
		stats.GET("/dispatch", h.Stats.DispatchStats)
		stats.GET("/routes", h.Stats.RouteStats)
	}

	r.POST("/escalations/sweep", h.Stats.RunSweep)
}
