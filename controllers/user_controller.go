package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"social-backend/models"
	"social-backend/utils"
)

type UserInfoResponse struct {
	ID        uint       `json:"id"`
	Username  string     `json:"username"`
	AvatarURL string     `json:"avatar_url"`
	Bio       string     `json:"bio"`
	IsPrivate bool       `json:"is_private"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"last_seen"`
}

func (ctl *Controller) userInfo(c *gin.Context, id uint) {
	var user models.User
	err := ctl.db.WithContext(c.Request.Context()).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.RespondError(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		ctl.respondError(c, err)
		return
	}

	utils.RespondSuccess(c, UserInfoResponse{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Bio:       user.Bio,
		IsPrivate: user.IsPrivate,
		Online:    ctl.core.Presence.IsOnline(user.ID),
		LastSeen:  user.LastSeen,
	}, nil)
}

// GetUserInfo 当前登录用户信息
func (ctl *Controller) GetUserInfo(c *gin.Context) {
	ctl.userInfo(c, currentUserID(c))
}

// GetUser 用户资料与在线状态
func (ctl *Controller) GetUser(c *gin.Context) {
	id, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	ctl.userInfo(c, id)
}
