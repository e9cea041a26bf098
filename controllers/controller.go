package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-backend/services"
	"social-backend/utils"
)

// Controller 持有所有 handler 依赖的服务
type Controller struct {
	db   *gorm.DB
	core *services.Core
	log  *zap.Logger
}

func New(db *gorm.DB, core *services.Core, log *zap.Logger) *Controller {
	return &Controller{db: db, core: core, log: log}
}

// respondError 把业务错误映射为 HTTP 状态码
func (ctl *Controller) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAccessDenied):
		utils.RespondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidArgument):
		utils.RespondError(c, http.StatusBadRequest, err.Error())
	default:
		ctl.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.RespondError(c, http.StatusInternalServerError, "internal error")
	}
}

func currentUserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		utils.RespondError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
