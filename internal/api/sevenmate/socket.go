package sevenmate

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 控制通道动作 ID
const (
	actionAuthenticate  = 1
	actionUnlock        = 3002
	actionTemporaryLock = 3003
)

// 帧头：三个大端 uint32（消息 ID、动作 ID、负载长度）
const frameHeaderSize = 12

// authSettleDelay 认证帧发出后的固定等待。服务端不回认证确认帧，
// 过早发送动作帧会被拒绝；是刻意留的余量还是疏漏尚不明确，
// 先保持现状不改语义。
const authSettleDelay = 200 * time.Millisecond

// SocketClient 控制通道客户端，仅用于解锁/临时锁车两个实时动作。
// 连接后必须先认证，认证码由会话密钥推导。
type SocketClient struct {
	sid       int64
	socketKey string
	socketURL string

	mu    sync.Mutex
	conn  *websocket.Conn
	msgID uint32
}

// NewSocketClient 创建控制通道客户端
func NewSocketClient(sid int64, socketKey, socketURL string) *SocketClient {
	return &SocketClient{
		sid:       sid,
		socketKey: socketKey,
		socketURL: socketURL,
		msgID:     1,
	}
}

// authCode 由 16 字节会话密钥推导认证码：
// 前 15 字节每个与后继字节异或，末字节与首个输出字节异或，
// 结果 base64 编码。
func authCode(socketKey string) (string, error) {
	key, err := hex.DecodeString(socketKey)
	if err != nil {
		return "", fmt.Errorf("decode socket key: %w", err)
	}
	if len(key) != 16 {
		return "", fmt.Errorf("socket key must be 16 bytes, got %d", len(key))
	}

	out := make([]byte, 16)
	for i := 0; i < 15; i++ {
		out[i] = key[i] ^ key[i+1]
	}
	out[15] = key[15] ^ out[0]

	return base64.StdEncoding.EncodeToString(out), nil
}

// encodeFrame 组装一帧：12 字节头 + 二进制负载
func encodeFrame(msgID, actionID uint32, payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], msgID)
	binary.BigEndian.PutUint32(frame[4:8], actionID)
	binary.BigEndian.PutUint32(frame[8:12], uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// decodeFrameHeader 解析帧头
func decodeFrameHeader(frame []byte) (msgID, actionID, payloadLen uint32, err error) {
	if len(frame) < frameHeaderSize {
		return 0, 0, 0, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	msgID = binary.BigEndian.Uint32(frame[0:4])
	actionID = binary.BigEndian.Uint32(frame[4:8])
	payloadLen = binary.BigEndian.Uint32(frame[8:12])
	return msgID, actionID, payloadLen, nil
}

// 负载结构，服务端按 map 解析
type authPayload struct {
	Data authData `cbor:"data"`
}

type authData struct {
	AuthCode string `cbor:"auth_code"`
}

type actionScene struct {
	Fn          string `cbor:"fn"`
	ShowMessage bool   `cbor:"showMessage"`
}

type actionHeaders struct {
	Accept             string `cbor:"Accept"`
	Client             string `cbor:"Client"`
	PhoneModel         string `cbor:"Phone-Model"`
	PhoneBrand         string `cbor:"Phone-Brand"`
	PhoneSystem        string `cbor:"Phone-System"`
	PhoneSystemVersion string `cbor:"Phone-System-Version"`
	AppVersion         string `cbor:"App-Version"`
}

func defaultActionHeaders() actionHeaders {
	return actionHeaders{
		Accept:             "application/vnd.ws.v1+json",
		Client:             "Wechat_MiniAPP",
		PhoneModel:         "Mac14,15",
		PhoneBrand:         "apple",
		PhoneSystem:        "Android",
		PhoneSystemVersion: "Mac OS X 15.6.1 arm64",
		AppVersion:         "1.3.129",
	}
}

type unlockPayload struct {
	UserID  int64         `cbor:"user_id"`
	Scene   actionScene   `cbor:"scene"`
	Headers actionHeaders `cbor:"headers"`
	Data    unlockData    `cbor:"data"`
}

type unlockData struct {
	ActionType int `cbor:"action_type"`
}

type temporaryLockPayload struct {
	UserID  int64             `cbor:"user_id"`
	Scene   actionScene       `cbor:"scene"`
	Headers actionHeaders     `cbor:"headers"`
	Data    temporaryLockData `cbor:"data"`
}

type temporaryLockData struct {
	BackType   *int `cbor:"back_type"` // 始终为 null
	ActionType int  `cbor:"action_type"`
}

// Connect 建立连接并发送认证帧
func (s *SocketClient) Connect(ctx context.Context) error {
	code, err := authCode(s.socketKey)
	if err != nil {
		return &AuthenticationError{Err: err}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?sid=%d", s.socketURL, s.sid), nil)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.send(actionAuthenticate, authPayload{Data: authData{AuthCode: code}}); err != nil {
		s.Close()
		return err
	}

	// 等待认证生效
	select {
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	case <-time.After(authSettleDelay):
	}
	return nil
}

// Close 关闭连接
func (s *SocketClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Unlock 发送解锁指令
func (s *SocketClient) Unlock() error {
	return s.send(actionUnlock, unlockPayload{
		UserID:  s.sid,
		Scene:   actionScene{Fn: uuid.NewString(), ShowMessage: true},
		Headers: defaultActionHeaders(),
		Data:    unlockData{ActionType: 1},
	})
}

// TemporaryLock 发送临时锁车指令
func (s *SocketClient) TemporaryLock() error {
	return s.send(actionTemporaryLock, temporaryLockPayload{
		UserID:  s.sid,
		Scene:   actionScene{Fn: uuid.NewString(), ShowMessage: true},
		Headers: defaultActionHeaders(),
		Data:    temporaryLockData{ActionType: 1},
	})
}

// send 编码并发送一帧，消息 ID 单调递增
func (s *SocketClient) send(actionID uint32, payload any) error {
	data, err := cbor.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	frame := encodeFrame(s.msgID, actionID, data)
	s.msgID++

	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
