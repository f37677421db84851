package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
)

// HandleServiceError 将服务层错误映射为 HTTP 响应。
func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrBoardNotFound) {
		ErrorResponse(c, http.StatusNotFound, err.Error())
	} else if errors.Is(err, service.ErrInvalidRecord) || errors.Is(err, service.ErrEmptyStream) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	} else if errors.Is(err, service.ErrStreamLimitExceeded) {
		ErrorResponse(c, http.StatusConflict, err.Error())
	} else {
		// Log the internal error for debugging
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
