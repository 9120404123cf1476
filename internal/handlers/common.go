package handlers

import (
	"strconv"

	"github.com/dailydues/backend/internal/middleware"
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/pkg/logger"
	"github.com/dailydues/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// actor builds the service caller from the auth middleware's context values.
func actor(c *gin.Context) services.Actor {
	return services.Actor{
		UserID:   middleware.GetUserID(c),
		Username: middleware.GetUsername(c),
		Role:     middleware.GetRole(c),
	}
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// toAppError maps a domain error kind onto its HTTP status.
func toAppError(err error) *response.AppError {
	msg := err.Error()
	switch services.KindOf(err) {
	case services.KindNotAuthenticated:
		return response.NewUnauthorized(msg)
	case services.KindNotAuthorized:
		return response.NewForbidden(msg)
	case services.KindNotFound:
		return response.NewNotFound(msg)
	case services.KindValidation:
		return response.NewBadRequest(msg)
	case services.KindStateConflict:
		return response.NewConflict(msg)
	default:
		return nil
	}
}

// fail writes err. Infrastructure errors are logged and hidden from the client.
func fail(c *gin.Context, err error) {
	if appErr := toAppError(err); appErr != nil {
		response.Error(c, appErr)
		return
	}
	logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	response.ServerError(c, "internal server error")
}
