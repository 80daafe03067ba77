package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Message はクライアントへ送る JSON の封筒
type Message struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
}

// Hub はトピック単位のファンアウト。遅い購読者への途中経過は捨てる。
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS は gin 側で制御する
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[string]map[chan []byte]struct{}{},
	}
}

// Subscribe の戻り値の関数で購読を解除する（チャネルも閉じる）
func (h *Hub) Subscribe(topic string) (<-chan []byte, func()) {
	ch := make(chan []byte, sendBuffer)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = map[chan []byte]struct{}{}
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[topic], ch)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) Publish(topic, typ string, data any) {
	b, ok := encode(topic, typ, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- b:
		default:
			log.Printf("[WARN] realtime: subscriber on %s is slow, message dropped", topic)
		}
	}
}

// PublishFinal は終端イベント用。詰まった購読者には古いメッセージを捨ててでも届ける。
func (h *Hub) PublishFinal(topic, typ string, data any) {
	b, ok := encode(topic, typ, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[topic] {
		if !replaceOldest(ch, b) {
			log.Printf("[WARN] realtime: could not deliver %s to a subscriber on %s", typ, topic)
		}
	}
}

func replaceOldest(ch chan []byte, b []byte) bool {
	for i := 0; i <= sendBuffer; i++ {
		select {
		case ch <- b:
			return true
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
	return false
}

func encode(topic, typ string, data any) ([]byte, bool) {
	b, err := json.Marshal(Message{Type: typ, Topic: topic, Data: data})
	if err != nil {
		log.Printf("[ERROR] realtime: marshal %s/%s: %v", topic, typ, err)
		return nil, false
	}
	return b, true
}

// Serve は WebSocket に昇格してトピックを流し続ける。クライアントからの受信は切断検知にだけ使う。
func (h *Hub) Serve(c *gin.Context, topic string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WARN] realtime: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.Subscribe(topic)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case b, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
