package sevenmate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

func TestAuthCode(t *testing.T) {
	got, err := authCode("000102030405060708090a0b0c0d0e0f")
	if err != nil {
		t.Fatalf("authCode: %v", err)
	}
	want := "AQMBBwEDAQ8BAwEHAQMBDg=="
	if got != want {
		t.Fatalf("authCode = %q, want %q", got, want)
	}
}

func TestAuthCodeInvalidKey(t *testing.T) {
	if _, err := authCode("zz"); err == nil {
		t.Fatal("authCode on non-hex key succeeded")
	}
	if _, err := authCode("0001"); err == nil {
		t.Fatal("authCode on short key succeeded")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := encodeFrame(5, actionUnlock, payload)

	if len(frame) != frameHeaderSize+len(payload) {
		t.Fatalf("frame length = %d", len(frame))
	}

	msgID, actionID, payloadLen, err := decodeFrameHeader(frame)
	if err != nil {
		t.Fatalf("decodeFrameHeader: %v", err)
	}
	if msgID != 5 || actionID != actionUnlock || payloadLen != uint32(len(payload)) {
		t.Fatalf("header = (%d, %d, %d)", msgID, actionID, payloadLen)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	frame := encodeFrame(1, actionAuthenticate, nil)
	if len(frame) != frameHeaderSize {
		t.Fatalf("frame length = %d, want %d", len(frame), frameHeaderSize)
	}
	_, _, payloadLen, err := decodeFrameHeader(frame)
	if err != nil {
		t.Fatalf("decodeFrameHeader: %v", err)
	}
	if payloadLen != 0 {
		t.Fatalf("payloadLen = %d", payloadLen)
	}
}

func TestDecodeFrameHeaderTooShort(t *testing.T) {
	if _, _, _, err := decodeFrameHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("decodeFrameHeader on short frame succeeded")
	}
}

func TestSendBeforeConnect(t *testing.T) {
	s := NewSocketClient(7, "000102030405060708090a0b0c0d0e0f", "ws://example.invalid/ws")
	if err := s.Unlock(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Unlock before connect = %v, want ErrNotConnected", err)
	}
}

func TestConnectAndUnlock(t *testing.T) {
	const socketKey = "000102030405060708090a0b0c0d0e0f"

	frames := make(chan []byte, 8)
	sids := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sids <- r.URL.Query().Get("sid")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	defer server.Close()

	socketURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := NewSocketClient(7, socketKey, socketURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	if err := client.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if got := <-sids; got != "7" {
		t.Fatalf("sid query param = %q, want 7", got)
	}

	// 第一帧：认证
	frame := recvFrame(t, frames)
	msgID, actionID, payloadLen, err := decodeFrameHeader(frame)
	if err != nil {
		t.Fatalf("decode auth frame: %v", err)
	}
	if msgID != 1 || actionID != actionAuthenticate {
		t.Fatalf("auth frame header = (%d, %d)", msgID, actionID)
	}
	if int(payloadLen) != len(frame)-frameHeaderSize {
		t.Fatalf("auth payload length mismatch: header says %d, frame has %d", payloadLen, len(frame)-frameHeaderSize)
	}

	var auth authPayload
	if err := cbor.Unmarshal(frame[frameHeaderSize:], &auth); err != nil {
		t.Fatalf("decode auth payload: %v", err)
	}
	wantCode, _ := authCode(socketKey)
	if auth.Data.AuthCode != wantCode {
		t.Fatalf("auth_code = %q, want %q", auth.Data.AuthCode, wantCode)
	}

	// 第二帧：解锁，消息 ID 递增
	frame = recvFrame(t, frames)
	msgID, actionID, _, err = decodeFrameHeader(frame)
	if err != nil {
		t.Fatalf("decode unlock frame: %v", err)
	}
	if msgID != 2 || actionID != actionUnlock {
		t.Fatalf("unlock frame header = (%d, %d)", msgID, actionID)
	}

	var unlock unlockPayload
	if err := cbor.Unmarshal(frame[frameHeaderSize:], &unlock); err != nil {
		t.Fatalf("decode unlock payload: %v", err)
	}
	if unlock.UserID != 7 {
		t.Fatalf("user_id = %d, want 7", unlock.UserID)
	}
	if unlock.Data.ActionType != 1 {
		t.Fatalf("action_type = %d, want 1", unlock.Data.ActionType)
	}
	if unlock.Scene.Fn == "" {
		t.Fatal("scene.fn is empty")
	}
}

func TestTemporaryLockCarriesNullBackType(t *testing.T) {
	data, err := cbor.Marshal(temporaryLockPayload{
		UserID:  7,
		Scene:   actionScene{Fn: "fn", ShowMessage: true},
		Headers: defaultActionHeaders(),
		Data:    temporaryLockData{ActionType: 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Data map[string]any `cbor:"data"`
	}
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	value, present := decoded.Data["back_type"]
	if !present {
		t.Fatal("back_type missing from temporary lock payload")
	}
	if value != nil {
		t.Fatalf("back_type = %v, want null", value)
	}
}

func recvFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case frame := <-frames:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}
