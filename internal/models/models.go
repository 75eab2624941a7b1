package models

// PhoneRequest 请求短信验证码
type PhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// LoginRequest 手机号+验证码登录
type LoginRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// TokenRequest 用已有 Token 登录
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// OrderRequest 预约车辆
type OrderRequest struct {
	CarNumber string `json:"car_number" binding:"required"`
}

// PayRequest 余额支付
type PayRequest struct {
	OrderID   int64  `json:"order_id" binding:"required"`
	CreatedAt string `json:"created_at" binding:"required"`
}

// PeriodicTaskRequest 创建/更新周期任务
type PeriodicTaskRequest struct {
	Name           string  `json:"name" binding:"required"`
	Cron           string  `json:"cron" binding:"required"` // 例如 "0 8 * * 1-5"
	Latitude       float64 `json:"latitude" binding:"required"`
	Longitude      float64 `json:"longitude" binding:"required"`
	LocationName   string  `json:"location_name"`
	MinElectricity int     `json:"min_electricity"`
	CarModelID     *int    `json:"carmodel_id"` // 1 单车 2 电单车，空为不限
	MaxLoops       int     `json:"max_loops"`
}

// MessageResponse 通用消息响应
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse 登录成功响应
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiredAt string `json:"expired_at"`
}
