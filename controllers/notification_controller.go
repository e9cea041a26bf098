package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-backend/utils"
)

// GetNotifications 通知列表，?limit=&offset=
func (ctl *Controller) GetNotifications(c *gin.Context) {
	list, err := ctl.core.Notifications.List(c.Request.Context(), currentUserID(c),
		intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, nil)
}

// GetUnreadNotifications 未读通知数
func (ctl *Controller) GetUnreadNotifications(c *gin.Context) {
	n, err := ctl.core.Notifications.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"unread": n}, nil)
}

// MarkNotificationsRead 标记已读，ids 为空时全部已读
func (ctl *Controller) MarkNotificationsRead(c *gin.Context) {
	var input struct {
		IDs []uint `json:"ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			utils.RespondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	n, err := ctl.core.Notifications.MarkRead(c.Request.Context(), currentUserID(c), input.IDs)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"updated": n}, nil)
}
