package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/klenoapp/kleno-server/internal/middleware"
	"github.com/klenoapp/kleno-server/internal/service"
	"github.com/klenoapp/kleno-server/pkg/response"
)

// HouseHandler handles boarding house discovery and navigation.
type HouseHandler struct {
	houseService *service.HouseService
}

// NewHouseHandler creates a HouseHandler.
func NewHouseHandler(houseService *service.HouseService) *HouseHandler {
	return &HouseHandler{houseService: houseService}
}

// Nearby lists houses within a radius of the caller, closest first.
// @Summary Nearby boarding houses
// @Tags houses
// @Security Bearer
// @Produce json
// @Param lat query number false "current latitude"
// @Param lon query number false "current longitude"
// @Param max_radius_km query number false "search radius" default(2)
// @Param region query string false "region anchor name"
// @Param use_region_anchor query bool false "adjust origin via region anchor" default(true)
// @Param page query int false "page" default(1)
// @Param page_size query int false "page size" default(20)
// @Success 200 {object} response.Response{data=service.NearbyResult}
// @Router /api/v1/houses/nearby [get]
func (h *HouseHandler) Nearby(c *gin.Context) {
	userID := middleware.GetUserID(c)

	req := &service.NearbyRequest{
		Region:          c.Query("region"),
		UseRegionAnchor: c.DefaultQuery("use_region_anchor", "true") == "true",
	}

	req.Position = positionFromQuery(c)

	req.MaxRadiusKm, _ = strconv.ParseFloat(c.DefaultQuery("max_radius_km", "2"), 64)
	if req.MaxRadiusKm <= 0 || req.MaxRadiusKm > 50 {
		req.MaxRadiusKm = 2
	}

	req.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	req.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if req.PageSize < 1 || req.PageSize > 24 {
		req.PageSize = 20
	}

	result, err := h.houseService.Nearby(c.Request.Context(), userID, req)
	if err != nil {
		h.writeHouseError(c, err, "failed to search nearby houses")
		return
	}

	response.Success(c, result)
}

// GetHouse returns one listing.
// @Summary Get a boarding house
// @Tags houses
// @Security Bearer
// @Produce json
// @Param id path int true "house ID"
// @Success 200 {object} response.Response{data=service.HouseResponse}
// @Router /api/v1/houses/{id} [get]
func (h *HouseHandler) GetHouse(c *gin.Context) {
	houseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || houseID <= 0 {
		response.BadRequest(c, "invalid house ID")
		return
	}

	house, err := h.houseService.GetHouse(c.Request.Context(), houseID)
	if err != nil {
		h.writeHouseError(c, err, "failed to load house")
		return
	}

	response.Success(c, house)
}

// Navigation builds deep links to external navigation apps.
// @Summary Navigation links to a house
// @Tags houses
// @Security Bearer
// @Produce json
// @Param id path int true "house ID"
// @Param lat query number false "origin latitude"
// @Param lon query number false "origin longitude"
// @Param region query string false "region anchor name"
// @Param use_region_anchor query bool false "adjust origin via region anchor" default(true)
// @Success 200 {object} response.Response{data=service.NavigationResponse}
// @Router /api/v1/houses/{id}/navigation [get]
func (h *HouseHandler) Navigation(c *gin.Context) {
	userID := middleware.GetUserID(c)

	houseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || houseID <= 0 {
		response.BadRequest(c, "invalid house ID")
		return
	}

	pos := positionFromQuery(c)
	region := c.Query("region")
	useAnchor := c.DefaultQuery("use_region_anchor", "true") == "true"

	nav, err := h.houseService.Navigation(c.Request.Context(), userID, houseID, pos, region, useAnchor)
	if err != nil {
		h.writeHouseError(c, err, "failed to build navigation links")
		return
	}

	response.Success(c, nav)
}

// positionFromQuery reads an optional lat/lon pair; both must be present.
func positionFromQuery(c *gin.Context) *service.Position {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return nil
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	return &service.Position{Lat: lat, Lon: lon}
}

func (h *HouseHandler) writeHouseError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.UserNotFound(c)
	case errors.Is(err, service.ErrHouseNotFound):
		response.HouseNotFound(c)
	case errors.Is(err, service.ErrHouseNoCoordinates):
		response.ErrorWithCode(c, 400, response.CodeNoCoordinates, "boarding house has no coordinates")
	case errors.Is(err, service.ErrNoStoredLocation):
		response.NoStoredLocation(c)
	case errors.Is(err, service.ErrInvalidCoordinates):
		response.BadRequest(c, "invalid coordinates")
	default:
		response.InternalError(c, fallback)
	}
}
