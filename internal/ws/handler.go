package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roulette-service/internal/middleware"
	"roulette-service/internal/service/duel"
	"roulette-service/internal/service/table"
	pkgAuth "roulette-service/pkg/auth"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client actions.
const (
	ActionFire   = "fire"
	ActionStart  = "start"
	ActionRejoin = "rejoin"
	ActionResync = "resync"
	ActionPing   = "ping"
)

type Handler struct {
	tableSvc *table.Service
	rdb      *redis.Client
}

// NewHandler builds the socket handlers. rdb backs spectator sockets and may
// be nil when replication is off.
func NewHandler(tableSvc *table.Service, rdb *redis.Client) *Handler {
	return &Handler{tableSvc: tableSvc, rdb: rdb}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) HandleTableWS(c *gin.Context) {
	tableID, err := strconv.ParseInt(c.Param("tableId"), 10, 64)
	if err != nil || tableID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
		return
	}

	token, err := getTokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := pkgAuth.ParsePlayerToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	playerID := claims.SubjectID

	if err := h.tableSvc.ValidateTableAccess(c.Request.Context(), playerID, tableID); err != nil {
		switch {
		case errors.Is(err, appErr.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		case errors.Is(err, appErr.ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		case errors.Is(err, appErr.ErrTableAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "table access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate table access"})
		}
		return
	}

	coord, err := h.tableSvc.GetRuntime(c.Request.Context(), tableID)
	if err != nil {
		if errors.Is(err, appErr.ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load table"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.Int64("tableID", tableID),
		zap.Int64("playerID", playerID),
	)

	client := newClient(conn, duel.ActorID(playerID), coord)
	client.run()
}

func getTokenFromRequest(c *gin.Context) (string, error) {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}
	token, err := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil || token == "" {
		return "", errors.New("missing token")
	}
	return token, nil
}

type incomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fireData struct {
	TargetID  int64  `json:"targetId,string"`
	RequestID string `json:"requestId"`
}

type client struct {
	conn      *websocket.Conn
	actor     duel.ActorID
	coord     *duel.Coordinator
	outbound  <-chan duel.OutgoingMessage
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, actor duel.ActorID, coord *duel.Coordinator) *client {
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		actor:     actor,
		coord:     coord,
		outbound:  coord.Subscribe(actor),
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.coord.Unsubscribe(c.actor)
		c.conn.Close()
	}()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("actor", int64(c.actor)), zap.Int64("tableID", c.coord.TableID()))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var incoming incomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.coord.Reject(c.actor, "", "", errors.New("invalid payload"))
			continue
		}
		if incoming.Type == "" {
			continue
		}
		c.dispatch(incoming)
	}
}

func (c *client) dispatch(msg incomingMessage) {
	switch msg.Type {
	case ActionFire:
		var data fireData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.coord.Reject(c.actor, ActionFire, "", errors.New("invalid fire payload"))
				return
			}
		}
		if data.RequestID == "" {
			data.RequestID = uuid.NewString()
		}
		result, err := c.coord.RequestFire(c.actor, duel.FireRequest{
			Shooter:   c.actor,
			Target:    duel.ActorID(data.TargetID),
			RequestID: data.RequestID,
		})
		if err != nil {
			c.coord.Reject(c.actor, ActionFire, data.RequestID, err)
			return
		}
		c.coord.Ack(c.actor, data.RequestID, result)
	case ActionStart:
		if err := c.coord.StartMatch(c.actor); err != nil {
			c.coord.Reject(c.actor, ActionStart, "", err)
		}
	case ActionRejoin, ActionResync:
		c.coord.Resync(c.actor)
	case ActionPing:
		c.coord.Ping(c.actor)
	default:
		c.coord.Reject(c.actor, msg.Type, "", errors.New("unknown action"))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("actor", int64(c.actor)), zap.Int64("tableID", c.coord.TableID()))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
