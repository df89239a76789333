package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"portfolio-srv/internal/database"
	"portfolio-srv/internal/feedback"
	"portfolio-srv/internal/game"
	"portfolio-srv/internal/middleware"

	"github.com/gorilla/websocket"
)

// 连接参数
const (
	liveReadLimit    = 4 * 1024
	livePongWait     = 60 * time.Second
	livePingInterval = 30 * time.Second
	liveWriteWait    = 10 * time.Second
)

// 默认只允许同源连接
var upgrader = websocket.Upgrader{}

// MessageType 消息类型定义
type MessageType string

const (
	TypeSnapshot MessageType = "snapshot"
	TypeError    MessageType = "error"
)

// LiveMessage 推送消息
type LiveMessage struct {
	Type       MessageType         `json:"type"`
	Collection database.Collection `json:"collection,omitempty"`
	Items      any                 `json:"items,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// peerConn 封装 WebSocket 连接
// 订阅回调只把最新一条消息放入 pending，由写协程发送，慢连接不会阻塞推送
type peerConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending chan []byte
}

// offer 放入最新消息，丢弃尚未发送的旧快照
func (p *peerConn) offer(v LiveMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("JSON序列化失败", "error", err)
		return
	}
	for {
		select {
		case p.pending <- data:
			return
		default:
			select {
			case <-p.pending:
			default:
			}
		}
	}
}

func (p *peerConn) write(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(messageType, data)
}

// writeLoop 发送待推送消息与心跳
func (p *peerConn) writeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(livePingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-p.pending:
			if err := p.write(websocket.TextMessage, data); err != nil {
				slog.Error("WebSocket写入失败", "error", err)
				_ = p.conn.Close()
				return
			}
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				_ = p.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

// LiveWebSocket 处理 GET /api/live/{collection}
// 每次集合变化都推送完整的视图快照
func (a *API) LiveWebSocket(w http.ResponseWriter, r *http.Request) {
	v := middleware.GetVisitor(r)
	collection := database.Collection(r.PathValue("collection"))
	if !collection.Valid() {
		http.Error(w, "未知的集合", http.StatusNotFound)
		return
	}

	// 升级为 WebSocket 连接
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket升级失败", "error", err)
		return
	}
	defer func(conn *websocket.Conn) { _ = conn.Close() }(conn)

	conn.SetReadLimit(liveReadLimit)
	if err := conn.SetReadDeadline(time.Now().Add(livePongWait)); err != nil {
		slog.Error("设置读取超时失败", "error", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	peer := &peerConn{conn: conn, pending: make(chan []byte, 1)}
	viewer := v.Viewer()
	onError := func(err error) {
		peer.offer(LiveMessage{Type: TypeError, Collection: collection, Message: err.Error()})
	}

	var unsubscribe func()
	switch collection {
	case database.CollectionFeedback:
		unsubscribe = a.Board.Subscribe(r.Context(), viewer, func(list []database.Feedback) {
			peer.offer(LiveMessage{Type: TypeSnapshot, Collection: collection, Items: feedback.Project(list, viewer, v.State)})
		}, onError)
	case database.CollectionWinners:
		unsubscribe = a.Hub.Subscribe(r.Context(), collection, func(s database.Snapshot) {
			peer.offer(LiveMessage{Type: TypeSnapshot, Collection: collection, Items: game.WinnersView(s.Winners, viewer.Admin)})
		}, onError)
	}
	defer unsubscribe()

	gauge := a.Metrics.LiveSubscribers.WithLabelValues(string(collection))
	gauge.Inc()
	defer gauge.Dec()

	slog.Info("实时订阅已建立", "session", viewer.SessionID, "collection", collection)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		peer.writeLoop(done)
	}()
	defer wg.Wait()
	defer close(done)

	// 客户端不发送业务消息，读循环只用于检测断开和处理 pong
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket读取错误", "session", viewer.SessionID, "error", err)
			}
			break
		}
	}

	slog.Info("实时订阅已关闭", "session", viewer.SessionID, "collection", collection)
}
