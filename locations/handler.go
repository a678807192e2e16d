package locations

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type Module struct {
	service *Service
}

// RegisterRoutes mounts the structured groundwater lookup endpoints under /groundwater.
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	service, err := NewServiceFromEnv()
	if err != nil {
		return nil, err
	}
	if err := service.AutoMigrate(); err != nil {
		return nil, err
	}

	module := &Module{service: service}

	group := router.Group("/groundwater")
	group.GET("/lookup", module.handleLookup)
	group.GET("/locations", module.handleSearchLocations)

	return module, nil
}

func (m *Module) Service() *Service {
	if m == nil {
		return nil
	}
	return m.service
}

func (m *Module) handleLookup(c *gin.Context) {
	locationIDStr := strings.TrimSpace(c.Query("location_id"))
	if locationIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location_id is required"})
		return
	}
	locationID, err := strconv.ParseUint(locationIDStr, 10, 64)
	if err != nil || locationID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return
	}

	metric := strings.TrimSpace(c.Query("metric"))

	var year *int
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = &parsed
	}

	fact, err := m.service.Lookup(c.Request.Context(), locationID, metric, year)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no assessment record found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, fact)
}

func (m *Module) handleSearchLocations(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	matches, err := m.service.SearchLocations(c.Request.Context(), query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "location search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"locations": matches})
}
