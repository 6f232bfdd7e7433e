package handlers

import (
	"github.com/gin-gonic/gin"

	"medidispatch/internal/models"
	"medidispatch/internal/services"
	"medidispatch/internal/utils"
)

// FleetHandler manages vehicles and their crews.
type FleetHandler struct {
	registry  services.RegistryService
	lifecycle services.LifecycleService
}

func NewFleetHandler(registry services.RegistryService, lifecycle services.LifecycleService) *FleetHandler {
	return &FleetHandler{
		registry:  registry,
		lifecycle: lifecycle,
	}
}

func (h *FleetHandler) RegisterVehicle(c *gin.Context) {
	var request models.VehicleRequest
	if !bindJSON(c, &request) {
		return
	}
	vehicle, err := h.registry.RegisterVehicle(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Vehicle", err)
		return
	}
	utils.CreatedResponse(c, "Vehicle registered", vehicle)
}

func (h *FleetHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.registry.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Vehicle", err)
		return
	}
	utils.SuccessResponse(c, "Vehicle retrieved successfully", vehicle)
}

func (h *FleetHandler) ListVehicles(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	vehicles, total, err := h.registry.ListVehicles(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Vehicle", err)
		return
	}
	listResponse(c, "Vehicles retrieved successfully", "vehicles", vehicles, params, total)
}

func (h *FleetHandler) UpdateVehicleLocation(c *gin.Context) {
	var request models.LocationUpdateRequest
	if !bindJSON(c, &request) {
		return
	}
	vehicle, err := h.registry.UpdateVehicleLocation(c.Request.Context(), c.Param("id"), request.Location)
	if err != nil {
		respondError(c, "Vehicle", err)
		return
	}
	utils.SuccessResponse(c, "Vehicle location updated", vehicle)
}

func (h *FleetHandler) SetVehicleStatus(c *gin.Context) {
	var request models.VehicleStatusRequest
	if !bindJSON(c, &request) {
		return
	}
	vehicle, err := h.lifecycle.SetVehicleStatus(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Vehicle", err)
		return
	}
	utils.SuccessResponse(c, "Vehicle status updated", vehicle)
}

func (h *FleetHandler) AssignCrew(c *gin.Context) {
	var request models.CrewRequest
	if !bindJSON(c, &request) {
		return
	}
	vehicle, driver, err := h.registry.AssignCrew(c.Request.Context(), c.Param("id"), request.DriverID, request.Actor)
	if err != nil {
		respondError(c, "Vehicle or driver", err)
		return
	}
	utils.SuccessResponse(c, "Crew assigned", map[string]interface{}{
		"vehicle": vehicle,
		"driver":  driver,
	})
}

func (h *FleetHandler) RegisterDriver(c *gin.Context) {
	var request models.DriverRequest
	if !bindJSON(c, &request) {
		return
	}
	driver, err := h.registry.RegisterDriver(c.Request.Context(), &request)
	if err != nil {
		respondError(c, "Driver", err)
		return
	}
	utils.CreatedResponse(c, "Driver registered", driver)
}

func (h *FleetHandler) GetDriver(c *gin.Context) {
	driver, err := h.registry.GetDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Driver", err)
		return
	}
	utils.SuccessResponse(c, "Driver retrieved successfully", driver)
}

func (h *FleetHandler) ListDrivers(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	drivers, total, err := h.registry.ListDrivers(c.Request.Context(), params)
	if err != nil {
		respondError(c, "Driver", err)
		return
	}
	listResponse(c, "Drivers retrieved successfully", "drivers", drivers, params, total)
}

func (h *FleetHandler) SetDriverStatus(c *gin.Context) {
	var request models.DriverStatusRequest
	if !bindJSON(c, &request) {
		return
	}
	driver, err := h.lifecycle.SetDriverStatus(c.Request.Context(), c.Param("id"), &request)
	if err != nil {
		respondError(c, "Driver", err)
		return
	}
	utils.SuccessResponse(c, "Driver status updated", driver)
}

// UpdateDriverDevice registers the push token for the driver's handset.
func (h *FleetHandler) UpdateDriverDevice(c *gin.Context) {
	var request models.DeviceRequest
	if !bindJSON(c, &request) {
		return
	}
	driver, err := h.registry.UpdateDriverDevice(c.Request.Context(), c.Param("id"), request.Token, request.Platform)
	if err != nil {
		respondError(c, "Driver", err)
		return
	}
	utils.SuccessResponse(c, "Driver device updated", driver)
}
