package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"
)

// WebSocketPath WebSocket 识别端点
const WebSocketPath = "/ws/evaluate"

// WsRequest WebSocket 请求
type WsRequest struct {
	MessageId string           `json:"messageId"`
	Evaluate  *EvaluateRequest `json:"evaluate,omitempty"`
}

// WsResponse WebSocket 响应
type WsResponse struct {
	MessageId string            `json:"messageId"`
	Timestamp int64             `json:"timestamp"`
	Success   bool              `json:"success"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Result    *EvaluateResponse `json:"result,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler 返回 WebSocket 识别端点
// 每条消息是一个 WsRequest，按顺序处理并回复 WsResponse
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("WebSocket 升级失败", zap.Error(err))
			return
		}
		defer conn.Close()
		conn.SetReadLimit(MaxMessageSize)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn("WebSocket 读取失败", zap.Error(err))
				}
				return
			}

			resp := s.handleWsMessage(r, data)
			out, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("序列化响应失败", zap.Error(err))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				s.logger.Warn("WebSocket 发送失败", zap.Error(err))
				return
			}
		}
	})
}

func (s *Server) handleWsMessage(r *http.Request, data []byte) *WsResponse {
	var req WsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return &WsResponse{
			Timestamp: time.Now().UnixMilli(),
			Code:      "InvalidArgument",
			Message:   "解析请求失败: " + err.Error(),
		}
	}
	resp := &WsResponse{MessageId: req.MessageId}
	if req.Evaluate == nil {
		resp.Timestamp = time.Now().UnixMilli()
		resp.Code = "InvalidArgument"
		resp.Message = "缺少 evaluate"
		return resp
	}

	result, err := s.Evaluate(r.Context(), req.Evaluate)
	resp.Timestamp = time.Now().UnixMilli()
	if err != nil {
		st := status.Convert(err)
		resp.Code = st.Code().String()
		resp.Message = st.Message()
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}
