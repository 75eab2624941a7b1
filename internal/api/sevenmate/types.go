package sevenmate

// UserSex 用户性别
type UserSex int

const (
	SexUnknown UserSex = 0
	SexMale    UserSex = 1
	SexFemale  UserSex = 2
)

func (s UserSex) String() string {
	switch s {
	case SexMale:
		return "male"
	case SexFemale:
		return "female"
	default:
		return "unknown"
	}
}

// CarModel 车辆型号
type CarModel int

const (
	ModelBicycle CarModel = 1 // 单车
	ModelEbike   CarModel = 2 // 电动车
)

func (m CarModel) String() string {
	switch m {
	case ModelBicycle:
		return "bicycle"
	case ModelEbike:
		return "ebike"
	default:
		return "unknown"
	}
}

// LockStatus 车锁状态
type LockStatus int

const (
	LockLocked   LockStatus = 1
	LockUnlocked LockStatus = 2
	LockNoStatus LockStatus = 3
)

func (s LockStatus) String() string {
	switch s {
	case LockLocked:
		return "locked"
	case LockUnlocked:
		return "unlocked"
	case LockNoStatus:
		return "no_status"
	default:
		return "unknown"
	}
}

// OrderState 订单状态
type OrderState int

const (
	OrderCycling        OrderState = 20 // 骑行中
	OrderPendingPayment OrderState = 30 // 待支付
	OrderCompleted      OrderState = 40 // 已完成
)

func (s OrderState) String() string {
	switch s {
	case OrderCycling:
		return "cycling"
	case OrderPendingPayment:
		return "pending_payment"
	case OrderCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// UserInfo 账号信息
type UserInfo struct {
	ID                                  int64   `json:"id"`
	Name                                string  `json:"name"`
	Nickname                            string  `json:"nickname"`
	Avatar                              string  `json:"avatar"`
	Phone                               string  `json:"phone"`
	Sex                                 UserSex `json:"sex"`
	AdmissionTime                       string  `json:"admission_time"`
	WechatOpenID                        string  `json:"wechat_openid"`
	SchoolID                            int64   `json:"school_id"`
	SchoolName                          string  `json:"school_name"`
	Balance                             string  `json:"balance"`
	Points                              int     `json:"points"`
	RegisterTime                        string  `json:"register_time"`
	Client                              string  `json:"client"`
	RecentFinishedCyclingOrderID        int64   `json:"recent_finished_cycling_order_id"`
	RecentFinishedCyclingOrderCreatedAt string  `json:"recent_finished_cycling_order_created_at"`
	CurrentCyclingOrderState            int     `json:"current_cycling_order_state"`
	CurrentCyclingOrderID               int64   `json:"current_cycling_order_id"`
	CurrentCyclingOrderCreatedAt        string  `json:"current_cycling_order_created_at"`
	Credits                             *int    `json:"credits,omitempty"`
}

// CarInfo 车辆信息。区域查询只返回编号、型号和大致位置；
// 单车查询补充电量、锁状态和里程。
type CarInfo struct {
	Number             string     `json:"number"`
	CarModelID         CarModel   `json:"carmodel_id"`
	Longitude          *float64   `json:"longitude,omitempty"`
	Latitude           *float64   `json:"latitude,omitempty"`
	CarModelName       string     `json:"carmodel_name,omitempty"`
	LockTitle          string     `json:"lock_title,omitempty"`
	LockStatus         LockStatus `json:"lock_status,omitempty"`
	Electricity        string     `json:"electricity,omitempty"` // 形如 "100%"
	Mileage            string     `json:"mileage,omitempty"`
	AllowTemporaryLock int        `json:"allow_temporary_lock,omitempty"`
}

// CyclingOrderInfo 骑行订单
type CyclingOrderInfo struct {
	OrderID       int64      `json:"order_id"`
	CarNumber     string     `json:"car_number"`
	CarModelID    CarModel   `json:"carmodel_id"`
	CarStartTime  string     `json:"car_start_time"`
	CarEndTime    *string    `json:"car_end_time"`
	EstimatedCost string     `json:"estimated_cost"` // 预估费用（骑行中看这个）
	OrderAmount   string     `json:"order_amount"`   // 订单金额（骑行中为 0）
	OrderState    OrderState `json:"order_state"`
	Electricity   string     `json:"electricity"`
	Mileage       string     `json:"mileage"`
	CreatedAt     string     `json:"created_at"`
}

// WSConnectionInfo 控制通道连接信息
type WSConnectionInfo struct {
	SocketURL string `json:"socketUrl"`
	SID       int64  `json:"id"`
	SocketKey string `json:"socketKey"`
}

// UnpaidOrder 推断出的未支付订单
type UnpaidOrder struct {
	OrderID   int64  `json:"order_id"`
	CreatedAt string `json:"created_at"`
}
