package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"social-backend/config"
	"social-backend/controllers"
	"social-backend/middlewares"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(cfg *config.Config, log *zap.Logger, ctl *controllers.Controller) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(log))

	// 配置跨域中间件
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middlewares.TokenAuthMiddleware(middlewares.AuthConfig{
		Secret:       cfg.Auth.Secret,
		Header:       cfg.Auth.Header,
		BearerPrefix: cfg.Auth.BearerPrefix,
		QueryKey:     cfg.Auth.QueryKey,
	})
	r.GET("/ws", auth, ctl.WSController)

	protected := r.Group("/api")
	protected.Use(auth)
	{
		protected.GET("/userinfo", ctl.GetUserInfo)
		protected.GET("/users/:user_id", ctl.GetUser)
		protected.POST("/users/:user_id/follow", ctl.Follow)
		protected.DELETE("/users/:user_id/follow", ctl.Unfollow)
		protected.POST("/follow-requests/:request_id/accept", ctl.AcceptFollowRequest)
		protected.POST("/follow-requests/:request_id/reject", ctl.RejectFollowRequest)

		// 会话
		protected.GET("/conversation", ctl.GetConversation)
		protected.POST("/createConversation", ctl.CreateConversationHandler)
		protected.POST("/groups", ctl.CreateGroup)
		protected.GET("/conversation/:conversation_id", ctl.GetMessagesByConversationID)
		protected.POST("/conversation/:conversation_id/members", ctl.AddMembers)
		protected.POST("/conversation/:conversation_id/leave", ctl.LeaveConversation)
		protected.POST("/conversation/:conversation_id/messages", ctl.SendMessage)
		protected.POST("/conversation/:conversation_id/seen", ctl.MarkSeen)
		protected.GET("/conversation/:conversation_id/pins", ctl.GetPins)

		// 消息
		protected.PATCH("/messages/:message_id", ctl.EditMessage)
		protected.GET("/messages/:message_id/edits", ctl.GetEditHistory)
		protected.POST("/messages/:message_id/recall", ctl.RecallMessage)
		protected.DELETE("/messages/:message_id", ctl.DeleteMessage)
		protected.POST("/messages/:message_id/reactions", ctl.ReactToMessage)
		protected.POST("/messages/:message_id/pin", ctl.TogglePin)

		// 通知
		protected.GET("/notifications", ctl.GetNotifications)
		protected.GET("/notifications/unread", ctl.GetUnreadNotifications)
		protected.POST("/notifications/read", ctl.MarkNotificationsRead)

		// 动态
		protected.POST("/posts", ctl.CreatePost)
		protected.POST("/posts/:post_id/reactions", ctl.ReactToPost)
		protected.DELETE("/posts/:post_id/reactions", ctl.RemovePostReaction)
		protected.POST("/posts/:post_id/comments", ctl.CommentPost)
		protected.POST("/posts/:post_id/repost", ctl.Repost)
	}

	return r
}
