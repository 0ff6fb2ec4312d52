package handlers

import (
	"net/http"

	"campushub/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the latest stored health snapshot. A degraded
// offline-queue store shows up here for operators instead of failing
// individual dispatches.
func HealthHandler(c *gin.Context) {
	status := utils.GetHealthStatus()

	code := http.StatusOK
	if !status.Mongo {
		code = http.StatusServiceUnavailable
	}
	for _, ok := range status.Redis {
		if !ok {
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, status)
}
