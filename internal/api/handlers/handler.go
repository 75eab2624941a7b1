package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/api/sevenmate"
	"github.com/rohenhonghyuan/7ma-web/internal/cache"
	"github.com/rohenhonghyuan/7ma-web/internal/config"
	"github.com/rohenhonghyuan/7ma-web/internal/service"
	"github.com/rohenhonghyuan/7ma-web/pkg/ws"
)

// gin context 键
const (
	ctxKeyClient = "sevenmate_client"
	ctxKeyUser   = "sevenmate_user"
	ctxKeyToken  = "sevenmate_token"
)

// Handler HTTP 处理器
type Handler struct {
	logger    *zap.Logger
	cfg       *config.Config
	registry  *service.Registry
	scheduler *service.Scheduler
	userCache *cache.Cache
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	cfg *config.Config,
	registry *service.Registry,
	scheduler *service.Scheduler,
	userCache *cache.Cache,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:    logger,
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		userCache: userCache,
		wsHub:     wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 认证（无需登录态）
		auth := api.Group("/auth")
		{
			auth.POST("/sms_code", h.GetSMSCode)
			auth.POST("/login", h.Login)
			auth.POST("/token_login", h.TokenLogin)
		}

		authed := api.Group("", h.authRequired())
		{
			// 用户
			authed.GET("/user", h.GetUserInfo)

			// 车辆
			authed.GET("/cars/surrounding", h.GetSurroundingCars)
			authed.GET("/cars/:number", h.GetCarInfo)

			// 订单与动作
			authed.POST("/orders", h.CreateOrder)
			authed.GET("/orders/current", h.GetCurrentOrder)
			authed.POST("/orders/actions/unlock", h.UnlockCar)
			authed.POST("/orders/actions/lock", h.TemporaryLockCar)
			authed.POST("/orders/actions/return", h.ReturnCar)
			authed.GET("/orders/unpaid", h.GetUnpaidOrder)
			authed.POST("/orders/pay", h.PayOrder)
			authed.POST("/orders/pay_unpaid", h.PayUnpaidOrder)
			authed.POST("/orders/signin", h.Signin)

			// 后台预约任务
			authed.POST("/tasks", h.CreateReservationTask)
			authed.GET("/tasks", h.ListReservationTasks)
			authed.DELETE("/tasks/:car_number", h.StopReservationTask)

			// 周期任务
			authed.POST("/periodic", h.CreatePeriodicTask)
			authed.GET("/periodic", h.ListPeriodicTasks)
			authed.PUT("/periodic/:id", h.UpdatePeriodicTask)
			authed.DELETE("/periodic/:id", h.DeletePeriodicTask)
		}
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查与指标
	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// authRequired 鉴权中间件：解析 Bearer Token，按需构造客户端，
// 用户信息走读穿缓存，避免每个请求都打一次远端
func (h *Handler) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		client, err := h.newClient(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication credentials"})
			return
		}

		value, err := h.userCache.GetOrLoad(token, func() (any, error) {
			return client.GetUserInfo(c.Request.Context(), false)
		})
		if err != nil {
			client.Close()
			h.logger.Warn("Failed to resolve user profile", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication credentials"})
			return
		}

		c.Set(ctxKeyClient, client)
		c.Set(ctxKeyUser, value.(*sevenmate.UserInfo))
		c.Set(ctxKeyToken, token)

		c.Next()
		client.Close()
	}
}

// newClient 按凭证构造 API 客户端
func (h *Handler) newClient(token string) (*sevenmate.Client, error) {
	client := sevenmate.NewClient(h.cfg.APIBaseURL)
	if err := client.SetToken(token, ""); err != nil {
		return nil, err
	}
	return client, nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func clientFrom(c *gin.Context) *sevenmate.Client {
	return c.MustGet(ctxKeyClient).(*sevenmate.Client)
}

func userFrom(c *gin.Context) *sevenmate.UserInfo {
	return c.MustGet(ctxKeyUser).(*sevenmate.UserInfo)
}

func userIDFrom(c *gin.Context) string {
	return strconv.FormatInt(userFrom(c).ID, 10)
}

func tokenFrom(c *gin.Context) string {
	return c.MustGet(ctxKeyToken).(string)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
