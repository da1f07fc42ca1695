// cmd/push-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/flashsale/domain"
)

const (
	serviceName = "push-gateway"
	servicePort = 8088
)

var (
	nodeID   = "push-gateway-" + uuid.NewString()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

// Hub 维护所有活跃的连接，按场次分组广播库存快照
type Hub struct {
	lock       sync.RWMutex
	bySale     map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
}

func newHub() *Hub {
	return &Hub{
		bySale:     make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case client := <-h.register:
			h.lock.Lock()
			if h.bySale[client.saleID] == nil {
				h.bySale[client.saleID] = make(map[*Client]struct{})
			}
			h.bySale[client.saleID][client] = struct{}{}
			h.lock.Unlock()
			logger.Logger().Info().Int64("sale_id", client.saleID).Str("node", nodeID).Msg("client subscribed")
		case client := <-h.unregister:
			h.lock.Lock()
			if set, ok := h.bySale[client.saleID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.bySale, client.saleID)
					}
				}
			}
			h.lock.Unlock()
			logger.Logger().Info().Int64("sale_id", client.saleID).Msg("client unsubscribed")
		}
	}
}

// broadcast 把库存快照推给订阅了该场次的全部连接。
// 推不动的慢连接直接踢掉，不让它拖住别人。
func (h *Hub) broadcast(saleID int64, payload []byte) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.bySale[saleID] {
		select {
		case client.send <- payload:
		default:
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	saleID int64
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(r.URL.Query().Get("saleId"), 10, 64)
	if err != nil || saleID <= 0 {
		http.Error(w, "saleId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger().Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), saleID: saleID}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeStockChanges 订阅库存变动事件并广播到各场次的连接。
// 每个网关节点用独立的消费组，人人都收全量。
func consumeStockChanges(ctx context.Context, hub *Hub, brokers []string) error {
	reader := mq.NewKafkaReader(brokers, domain.TopicStockChanged, "push-gateway-"+nodeID)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Logger().Error().Err(err).Msg("could not read stock change")
			continue
		}

		var ev domain.StockChangedPayload
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Logger().Warn().Err(err).Msg("malformed stock change payload, skipping")
			continue
		}
		hub.broadcast(ev.SaleID, msg.Value)
	}
}

func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := bootstrap.GetCurrentConfig()

	hub := newHub()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, w, r)
			})
		},
		BackgroundTasks: []func(context.Context) error{
			hub.run,
			func(ctx context.Context) error {
				return consumeStockChanges(ctx, hub, cfg.Infra.Kafka.Brokers)
			},
		},
	})
}
