package response

import (
	"errors"
	"net/http"

	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body is the envelope of every HTTP reply. Code repeats the HTTP status.
type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

var statusOf = []struct {
	err    error
	status int
}{
	{appErr.ErrUnauthorized, http.StatusUnauthorized},
	{appErr.ErrInvalidNickname, http.StatusBadRequest},
	{appErr.ErrInvalidPassword, http.StatusBadRequest},
	{appErr.ErrInvalidTableRule, http.StatusBadRequest},
	{appErr.ErrUnknownActor, http.StatusBadRequest},
	{appErr.ErrInvalidAmount, http.StatusBadRequest},
	{appErr.ErrPlayerBanned, http.StatusForbidden},
	{appErr.ErrTableAccessDenied, http.StatusForbidden},
	{appErr.ErrShooterMismatch, http.StatusForbidden},
	{appErr.ErrPlayerNotFound, http.StatusNotFound},
	{appErr.ErrTableNotFound, http.StatusNotFound},
	{appErr.ErrMatchNotFound, http.StatusNotFound},
	{appErr.ErrNicknameTaken, http.StatusConflict},
	{appErr.ErrTableFull, http.StatusConflict},
	{appErr.ErrAlreadySeated, http.StatusConflict},
	{appErr.ErrNotYourTurn, http.StatusConflict},
	{appErr.ErrMatchNotRunning, http.StatusConflict},
	{appErr.ErrMatchRunning, http.StatusConflict},
	{appErr.ErrNotEnoughActors, http.StatusConflict},
	{appErr.ErrNotAuthority, http.StatusMisdirectedRequest},
	{appErr.ErrTooManyAttempts, http.StatusTooManyRequests},
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func SuccessWithMsg(c *gin.Context, data interface{}, msg string) {
	JSON(c, http.StatusOK, data, msg)
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Code: status, Data: gin.H{}, Msg: msg})
}

// FromError replies with the status mapped to a domain error. Anything
// unmapped is a 500 and is logged with the route.
func FromError(c *gin.Context, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	Error(c, status, err.Error())
}

// Status maps err to an HTTP status.
func Status(err error) int {
	for _, entry := range statusOf {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
