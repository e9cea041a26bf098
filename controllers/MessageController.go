package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-backend/services"
	"social-backend/utils"
)

// SendMessage 发送消息
func (ctl *Controller) SendMessage(c *gin.Context) {
	var input services.SendMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := ctl.core.Chat.SendMessage(c.Request.Context(), currentUserID(c), c.Param("conversation_id"), input)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, msg, nil)
}

// EditMessage 编辑消息
func (ctl *Controller) EditMessage(c *gin.Context) {
	var input struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := ctl.core.Chat.EditMessage(c.Request.Context(), currentUserID(c), c.Param("message_id"), input.Content)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, msg, nil)
}

// GetEditHistory 消息编辑历史
func (ctl *Controller) GetEditHistory(c *gin.Context) {
	edits, err := ctl.core.Chat.EditHistory(c.Request.Context(), currentUserID(c), c.Param("message_id"))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, edits, nil)
}

// RecallMessage 撤回消息
func (ctl *Controller) RecallMessage(c *gin.Context) {
	msg, err := ctl.core.Chat.RecallMessage(c.Request.Context(), currentUserID(c), c.Param("message_id"))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, msg, nil)
}

// DeleteMessage 删除消息（软删除）
func (ctl *Controller) DeleteMessage(c *gin.Context) {
	if err := ctl.core.Chat.DeleteMessage(c.Request.Context(), currentUserID(c), c.Param("message_id")); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}

// ReactToMessage 表情回应
func (ctl *Controller) ReactToMessage(c *gin.Context) {
	var input struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := ctl.core.Chat.ReactToMessage(c.Request.Context(), currentUserID(c), c.Param("message_id"), input.Emoji)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, res, nil)
}

// TogglePin 置顶/取消置顶
func (ctl *Controller) TogglePin(c *gin.Context) {
	res, err := ctl.core.Chat.TogglePin(c.Request.Context(), currentUserID(c), c.Param("message_id"))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, res, nil)
}
