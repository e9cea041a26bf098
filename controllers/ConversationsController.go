package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"social-backend/utils"
)

// GetConversation 当前用户的会话列表（含未读数）
func (ctl *Controller) GetConversation(c *gin.Context) {
	list, err := ctl.core.Chat.ListConversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, list, nil)
}

// CreateConversationHandler 获取或创建私聊会话
func (ctl *Controller) CreateConversationHandler(c *gin.Context) {
	var input struct {
		ReceiverID uint `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	conv, created, err := ctl.core.Chat.GetOrCreateDirect(c.Request.Context(), currentUserID(c), input.ReceiverID)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{
		"conversation_id": conv.ConversationID,
		"created":         created,
	}, nil)
}

// CreateGroup 创建群聊
func (ctl *Controller) CreateGroup(c *gin.Context) {
	var input struct {
		Name      string `json:"name" binding:"required"`
		MemberIDs []uint `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := ctl.core.Chat.CreateGroup(c.Request.Context(), currentUserID(c), input.Name, input.MemberIDs)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, conv, nil)
}

// AddMembers 拉人进群
func (ctl *Controller) AddMembers(c *gin.Context) {
	var input struct {
		UserIDs []uint `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	added, err := ctl.core.Chat.AddMembers(c.Request.Context(), currentUserID(c), c.Param("conversation_id"), input.UserIDs)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"added": added}, nil)
}

// LeaveConversation 退出会话
func (ctl *Controller) LeaveConversation(c *gin.Context) {
	if err := ctl.core.Chat.Leave(c.Request.Context(), currentUserID(c), c.Param("conversation_id")); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}

// GetMessagesByConversationID 获取会话的消息列表，?before=RFC3339&limit=50
func (ctl *Controller) GetMessagesByConversationID(c *gin.Context) {
	var before *time.Time
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, "invalid before")
			return
		}
		before = &t
	}

	messages, err := ctl.core.Chat.ListMessages(c.Request.Context(), currentUserID(c),
		c.Param("conversation_id"), before, intQuery(c, "limit", 50))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, messages, gin.H{"count": len(messages)})
}

// MarkSeen 标记会话已读
func (ctl *Controller) MarkSeen(c *gin.Context) {
	if err := ctl.core.Chat.MarkSeen(c.Request.Context(), currentUserID(c), c.Param("conversation_id")); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}

// GetPins 会话置顶消息
func (ctl *Controller) GetPins(c *gin.Context) {
	pins, err := ctl.core.Chat.ListPins(c.Request.Context(), currentUserID(c), c.Param("conversation_id"))
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, pins, nil)
}
