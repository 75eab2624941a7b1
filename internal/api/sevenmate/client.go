package sevenmate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultBaseURL 7mate 小程序后端地址
const DefaultBaseURL = "https://newmapi.7mate.cn/api/"

// Client 7mate API 客户端。
// 模拟微信小程序的请求特征，所有调用在发出前附加当前凭证。
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	token      string
	expiredAt  string
}

// NewClient 创建客户端。baseURL 为空时使用 DefaultBaseURL。
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		headers: map[string]string{
			// phone-model 字段会触发设备限制，故不携带
			"phone-system":         "Android",
			"client":               "Wechat_MiniAPP",
			"phone-system-version": "Mac OS X 15.3.1",
			"content-type":         "application/json",
			"accept":               "application/vnd.ws.v1+json",
			"user-agent":           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36 MicroMessenger/6.8.0(0x16080000) NetType/WIFI MiniProgramEnv/Mac MacWechat/WMPF MacWechat/3.8.10(0x13080a10) XWEB/1227",
			"xweb_xhr":             "1",
			"phone-brand":          "apple",
			"app-version":          "1.3.91",
			"sec-fetch-site":       "cross-site",
			"sec-fetch-mode":       "cors",
			"sec-fetch-dest":       "empty",
			"referer":              "https://servicewechat.com/wx9a6a1a8407b04c5d/246/page-frame.html",
			"accept-language":      "zh-CN,zh;q=0.9",
		},
	}
}

// SetToken 设置认证令牌。仅解析 payload 读取过期时间做记账，
// 不校验签名——签名有效性由远端服务裁定。
func (c *Client) SetToken(token, expiredAt string) error {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return &AuthenticationError{Err: err}
	}

	c.token = token
	c.headers["authorization"] = "Bearer " + token

	if expiredAt != "" {
		c.expiredAt = expiredAt
		return nil
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		c.expiredAt = exp.Time.Format("2006-01-02 15:04:05")
	}
	return nil
}

// Token 当前令牌
func (c *Client) Token() string {
	return c.token
}

// ExpiredAt 当前令牌的过期时间
func (c *Client) ExpiredAt() string {
	return c.expiredAt
}

// Close 释放底层连接
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// envelope 通用响应结构。成功响应一般没有 status_code 字段，
// 出现 status_code 且不等于 200 即为业务失败。
type envelope struct {
	StatusCode *int            `json:"status_code,omitempty"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// request 执行请求并做统一的错误映射
func (c *Client) request(ctx context.Context, method, endpoint string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: string(raw)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.StatusCode != nil && *env.StatusCode != 200 {
		msg := env.Message
		if msg == "" {
			msg = "unknown api error"
		}
		return nil, &APIError{Message: msg}
	}
	return &env, nil
}

// GetSMSCode 获取短信验证码
func (c *Client) GetSMSCode(ctx context.Context, phone string) (string, error) {
	env, err := c.request(ctx, http.MethodPost, "verificationcode", map[string]any{
		"phone": phone,
		"scene": 1,
	})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Login 手机号+验证码登录。该端点与其他端点不同：
// 响应中只要出现 status_code 字段即视为拒绝。
func (c *Client) Login(ctx context.Context, phone, code string) (token, expiredAt string, err error) {
	body, err := json.Marshal(map[string]any{
		"phone":             phone,
		"verification_code": code,
	})
	if err != nil {
		return "", "", fmt.Errorf("encode login body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"authorizations", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create login request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", "", &APIError{Status: resp.StatusCode, Message: string(raw)}
	}

	var result struct {
		StatusCode *int   `json:"status_code,omitempty"`
		Message    string `json:"message,omitempty"`
		Data       struct {
			Token     string `json:"token"`
			ExpiredAt string `json:"expired_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", "", fmt.Errorf("decode login response: %w", err)
	}
	if result.StatusCode != nil {
		return "", "", &APIError{Message: result.Message}
	}

	if err := c.SetToken(result.Data.Token, result.Data.ExpiredAt); err != nil {
		return "", "", err
	}
	return result.Data.Token, c.expiredAt, nil
}

// GetUserInfo 获取账号信息，needCredits 为 true 时附带信用分
func (c *Client) GetUserInfo(ctx context.Context, needCredits bool) (*UserInfo, error) {
	env, err := c.request(ctx, http.MethodGet, "user", nil)
	if err != nil {
		return nil, err
	}

	var user UserInfo
	if err := json.Unmarshal(env.Data, &user); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}

	if needCredits {
		credits, err := c.GetUserCredits(ctx)
		if err != nil {
			return nil, err
		}
		user.Credits = &credits
	}
	return &user, nil
}

// GetUserCredits 获取信用分
func (c *Client) GetUserCredits(ctx context.Context) (int, error) {
	env, err := c.request(ctx, http.MethodGet, "user/credit_scores", nil)
	if err != nil {
		return 0, err
	}
	var data struct {
		CreditScores int `json:"credit_scores"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("decode credit scores: %w", err)
	}
	return data.CreditScores, nil
}

// GetWSConnectionInfo 获取控制通道连接信息
func (c *Client) GetWSConnectionInfo(ctx context.Context) (*WSConnectionInfo, error) {
	env, err := c.request(ctx, http.MethodGet, "user?socket=1", nil)
	if err != nil {
		return nil, err
	}
	var info WSConnectionInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("decode socket info: %w", err)
	}
	return &info, nil
}

// QueryCmd 查询指令执行状态
func (c *Client) QueryCmd(ctx context.Context, cmd string) (string, error) {
	env, err := c.request(ctx, http.MethodGet, "cmd/query/"+cmd, nil)
	if err != nil {
		return "", err
	}
	var data struct {
		Ret int `json:"ret"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode cmd status: %w", err)
	}

	switch data.Ret {
	case 1:
		return "success", nil
	case 0:
		return "pending", nil
	case 2:
		return "", &APIError{Message: "command succeeded with anomaly"}
	case 3:
		return "", &APIError{Message: "vehicle offline"}
	case 4:
		return "", &APIError{Message: "command failed"}
	default:
		return "", &APIError{Message: fmt.Sprintf("unknown command state: %d", data.Ret)}
	}
}

// authorityReasons unauthorized_code 对应的拒绝原因
var authorityReasons = map[int]string{
	1: "not logged in",
	2: "real-name verification missing",
	3: "real-name verification in progress",
	4: "real-name verification failed",
	5: "no recharge or package card",
	6: "trip in progress",
	7: "unpaid order",
	8: "unpaid dispatch fee",
	9: "unpaid compensation fee",
}

const authorityCodeUnpaidOrder = 7

// CheckAuthority 检查账号是否有用车权限。
// 无权限时返回携带 unauthorized_code 的 APIError。
func (c *Client) CheckAuthority(ctx context.Context) error {
	env, err := c.request(ctx, http.MethodGet, "user/car_authority", nil)
	if err != nil {
		return err
	}
	var data struct {
		UnauthorizedCode int `json:"unauthorized_code"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("decode authority: %w", err)
	}
	if data.UnauthorizedCode == 0 {
		return nil
	}

	reason, ok := authorityReasons[data.UnauthorizedCode]
	if !ok {
		reason = "unknown reason"
	}
	return &APIError{Code: data.UnauthorizedCode, Message: reason}
}

// OrderCar 下单预约车辆（不开锁）
func (c *Client) OrderCar(ctx context.Context, carNumber string) (string, error) {
	env, err := c.request(ctx, http.MethodPost, "order", map[string]any{
		"order_type": 1,
		"car_number": carNumber,
	})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// BackCar 主动还车，返回可用于 QueryCmd 的指令 ID
func (c *Client) BackCar(ctx context.Context) (string, error) {
	return c.lockAction(ctx, 2)
}

// TemporaryLockCarHTTP 临时锁车（HTTP 方式）
func (c *Client) TemporaryLockCarHTTP(ctx context.Context) (string, error) {
	return c.lockAction(ctx, 1)
}

func (c *Client) lockAction(ctx context.Context, actionType int) (string, error) {
	env, err := c.request(ctx, http.MethodPost, "car/lock", map[string]any{
		"action_type": actionType,
	})
	if err != nil {
		return "", err
	}
	var data struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode lock response: %w", err)
	}
	return data.Cmd, nil
}

// GetSurroundingCars 查询附近车辆，只能拿到编号、型号和大致位置
func (c *Client) GetSurroundingCars(ctx context.Context, longitude, latitude float64) ([]CarInfo, error) {
	endpoint := fmt.Sprintf("surrounding/car?longitude=%v&latitude=%v", longitude, latitude)
	env, err := c.request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var cars []CarInfo
	if err := json.Unmarshal(env.Data, &cars); err != nil {
		return nil, fmt.Errorf("decode surrounding cars: %w", err)
	}
	return cars, nil
}

// GetCarInfo 获取车辆详情，needLocation 为 true 时补充经纬度
func (c *Client) GetCarInfo(ctx context.Context, carNumber string, needLocation bool) (*CarInfo, error) {
	env, err := c.request(ctx, http.MethodGet, "car/"+carNumber, nil)
	if err != nil {
		return nil, err
	}
	var car CarInfo
	if err := json.Unmarshal(env.Data, &car); err != nil {
		return nil, fmt.Errorf("decode car info: %w", err)
	}

	if needLocation {
		longitude, latitude, err := c.GetCarLocation(ctx, carNumber)
		if err != nil {
			return nil, err
		}
		car.Longitude = &longitude
		car.Latitude = &latitude
	}
	return &car, nil
}

// GetCarLocation 获取车辆位置
func (c *Client) GetCarLocation(ctx context.Context, carNumber string) (longitude, latitude float64, err error) {
	env, err := c.request(ctx, http.MethodGet, "car/"+carNumber+"/location", nil)
	if err != nil {
		return 0, 0, err
	}
	var data struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, 0, fmt.Errorf("decode car location: %w", err)
	}
	return data.Longitude, data.Latitude, nil
}

// CurrentCyclingOrder 获取当前骑行订单
func (c *Client) CurrentCyclingOrder(ctx context.Context) (*CyclingOrderInfo, error) {
	env, err := c.request(ctx, http.MethodGet, "order/cycling", nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" || string(env.Data) == "[]" {
		return nil, &APIError{Message: "no cycling order"}
	}
	var order CyclingOrderInfo
	if err := json.Unmarshal(env.Data, &order); err != nil {
		return nil, fmt.Errorf("decode cycling order: %w", err)
	}
	return &order, nil
}

// GetUnpaidOrder 通过权限探测推断未支付订单。
// car_authority 返回"有未支付订单"时，取账号信息中最近完成的
// 订单作为未支付订单；其他情况返回 nil。
func (c *Client) GetUnpaidOrder(ctx context.Context) (*UnpaidOrder, error) {
	err := c.CheckAuthority(ctx)
	if err == nil {
		return nil, nil // 有权限，说明没有未支付订单
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		return nil, err
	}
	if apiErr.Code != authorityCodeUnpaidOrder {
		return nil, nil
	}

	user, err := c.GetUserInfo(ctx, false)
	if err != nil {
		return nil, err
	}
	if user.RecentFinishedCyclingOrderID == 0 {
		return nil, nil
	}
	return &UnpaidOrder{
		OrderID:   user.RecentFinishedCyclingOrderID,
		CreatedAt: user.RecentFinishedCyclingOrderCreatedAt,
	}, nil
}

// PayWithBalance 余额支付
func (c *Client) PayWithBalance(ctx context.Context, orderID int64, createdAt string) error {
	_, err := c.request(ctx, http.MethodPost, "payment/pay", map[string]any{
		"payment_id": 1,
		"order_id":   fmt.Sprintf("%d", orderID),
		"order_type": 1,
		"created_at": createdAt,
	})
	return err
}

// Signin 每日签到
func (c *Client) Signin(ctx context.Context) (string, error) {
	env, err := c.request(ctx, http.MethodPost, "signin", map[string]any{})
	if err != nil {
		return "", err
	}
	var data struct {
		Desc string `json:"desc"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode signin response: %w", err)
	}
	return data.Desc, nil
}

// UnlockCar 通过控制通道解锁车辆
func (c *Client) UnlockCar(ctx context.Context) error {
	return c.socketAction(ctx, func(s *SocketClient) error {
		return s.Unlock()
	})
}

// TemporaryLockCar 通过控制通道临时锁车
func (c *Client) TemporaryLockCar(ctx context.Context) error {
	return c.socketAction(ctx, func(s *SocketClient) error {
		return s.TemporaryLock()
	})
}

// socketAction 建立控制通道、认证、执行单个动作后关闭
func (c *Client) socketAction(ctx context.Context, action func(*SocketClient) error) error {
	info, err := c.GetWSConnectionInfo(ctx)
	if err != nil {
		return err
	}

	socket := NewSocketClient(info.SID, info.SocketKey, info.SocketURL)
	if err := socket.Connect(ctx); err != nil {
		return err
	}
	defer socket.Close()

	return action(socket)
}
