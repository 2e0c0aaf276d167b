package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preset/credits/internal/domain/pool"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/shared/response"
)

// PoolHandler handles platform credit pool HTTP requests.
type PoolHandler struct {
	domain inbound.ReconcilerDomain
}

// NewPoolHandler creates a new pool handler.
func NewPoolHandler(domain inbound.ReconcilerDomain) *PoolHandler {
	return &PoolHandler{domain: domain}
}

// RegisterAdminRoutes registers pool admin routes.
func (h *PoolHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	pools := r.Group("/pools")
	{
		pools.GET("/:provider", h.GetPool)
		pools.POST("/:provider/sync", h.Sync)
	}
}

var poolErrorMappings = []response.ErrorMapping{
	{Err: pool.ErrPoolNotFound, Status: http.StatusNotFound},
	{Err: pool.ErrSyncFailed, Status: http.StatusBadGateway, Code: "sync_failed"},
}

// GetPool returns the pool record for a provider.
func (h *PoolHandler) GetPool(c *gin.Context) {
	provider := c.Param("provider")
	if provider == "" {
		response.BadRequest(c, "invalid provider")
		return
	}

	out, err := h.domain.GetPool(c.Request.Context(), provider)
	if err != nil {
		response.HandleError(c, err, poolErrorMappings)
		return
	}

	c.JSON(http.StatusOK, out)
}

// Sync forces an immediate reconciliation against the provider.
func (h *PoolHandler) Sync(c *gin.Context) {
	provider := c.Param("provider")
	if provider == "" {
		response.BadRequest(c, "invalid provider")
		return
	}

	out, err := h.domain.Sync(c.Request.Context(), provider)
	if err != nil {
		response.HandleError(c, err, poolErrorMappings)
		return
	}

	c.JSON(http.StatusOK, out)
}
