package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-backend/utils"
)

// CreatePost 发帖
func (ctl *Controller) CreatePost(c *gin.Context) {
	var input struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	post, err := ctl.core.Social.CreatePost(c.Request.Context(), currentUserID(c), input.Content)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, post, nil)
}

// ReactToPost 点赞
func (ctl *Controller) ReactToPost(c *gin.Context) {
	postID, ok := uintParam(c, "post_id")
	if !ok {
		return
	}
	var input struct {
		Kind string `json:"kind"`
	}
	_ = c.ShouldBindJSON(&input)

	added, err := ctl.core.Social.ReactToPost(c.Request.Context(), currentUserID(c), postID, input.Kind)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, gin.H{"added": added}, nil)
}

// RemovePostReaction 取消点赞
func (ctl *Controller) RemovePostReaction(c *gin.Context) {
	postID, ok := uintParam(c, "post_id")
	if !ok {
		return
	}
	if err := ctl.core.Social.RemovePostReaction(c.Request.Context(), currentUserID(c), postID); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}

// CommentPost 评论或回复
func (ctl *Controller) CommentPost(c *gin.Context) {
	postID, ok := uintParam(c, "post_id")
	if !ok {
		return
	}
	var input struct {
		Content  string `json:"content" binding:"required"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	comment, err := ctl.core.Social.Comment(c.Request.Context(), currentUserID(c), postID, input.Content, input.ParentID)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, comment, nil)
}

// Repost 转发
func (ctl *Controller) Repost(c *gin.Context) {
	postID, ok := uintParam(c, "post_id")
	if !ok {
		return
	}
	var input struct {
		Content string `json:"content"`
	}
	_ = c.ShouldBindJSON(&input)

	post, err := ctl.core.Social.Repost(c.Request.Context(), currentUserID(c), postID, input.Content)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, post, nil)
}

// Follow 关注；私密账号生成关注请求
func (ctl *Controller) Follow(c *gin.Context) {
	userID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	f, err := ctl.core.Social.Follow(c.Request.Context(), currentUserID(c), userID)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, f, nil)
}

// Unfollow 取消关注
func (ctl *Controller) Unfollow(c *gin.Context) {
	userID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	if err := ctl.core.Social.Unfollow(c.Request.Context(), currentUserID(c), userID); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}

// AcceptFollowRequest 同意关注请求
func (ctl *Controller) AcceptFollowRequest(c *gin.Context) {
	id, ok := uintParam(c, "request_id")
	if !ok {
		return
	}
	f, err := ctl.core.Social.AcceptRequest(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, f, nil)
}

// RejectFollowRequest 拒绝关注请求
func (ctl *Controller) RejectFollowRequest(c *gin.Context) {
	id, ok := uintParam(c, "request_id")
	if !ok {
		return
	}
	if err := ctl.core.Social.RejectRequest(c.Request.Context(), currentUserID(c), id); err != nil {
		ctl.respondError(c, err)
		return
	}
	utils.RespondSuccess(c, nil, nil)
}
