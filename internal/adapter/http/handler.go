package http

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// parseUUIDParam parses a UUID path parameter, returning uuid.Nil when
// the value is missing or malformed.
func parseUUIDParam(c *gin.Context, name string) uuid.UUID {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		offset = v
	}
	return limit, offset
}
