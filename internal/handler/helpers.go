package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/middleware"
	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/pkg/response"
)

func currentUser(c *gin.Context) model.User {
	var user model.User
	if v, ok := c.Get(middleware.ContextUserIDKey); ok {
		user.ID, _ = v.(string)
	}
	if v, ok := c.Get(middleware.ContextUserNameKey); ok {
		user.Name, _ = v.(string)
	}
	if v, ok := c.Get(middleware.ContextUserRoleKey); ok {
		user.Role, _ = v.(string)
	}
	return user
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrAlreadyLocked):
		response.Error(c, http.StatusConflict, "already_locked", err.Error())
	case errors.Is(err, appErr.ErrAlreadySolved):
		response.Error(c, http.StatusConflict, "already_solved", err.Error())
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, http.StatusBadRequest, "invalid", err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, "too_many_requests", "too many requests")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, http.StatusConflict, "conflict", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
