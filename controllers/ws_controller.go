package controllers

import (
	"github.com/gin-gonic/gin"
)

func (ctl *Controller) WSController(ctx *gin.Context) {
	ctl.core.Gateway.HandleWebSocket(ctx)
}
