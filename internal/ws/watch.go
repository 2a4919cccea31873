package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"roulette-service/internal/service/duel"
	"roulette-service/internal/service/replica"
	pkgAuth "roulette-service/pkg/auth"
	appErr "roulette-service/pkg/errors"
	"roulette-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleWatchWS streams a table's replicated properties to a spectator. It
// works on any node since it reads the replica, not the Coordinator.
func (h *Handler) HandleWatchWS(c *gin.Context) {
	if h.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "replication disabled"})
		return
	}
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
	if _, err := pkgAuth.ParsePlayerToken(token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if _, err := h.tableSvc.GetTable(c.Request.Context(), tableID); err != nil {
		if errors.Is(err, appErr.ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load table"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	mirror := duel.NewMirror()
	follower, err := replica.NewFollower(ctx, h.rdb, tableID, mirror)
	if err != nil {
		cancel()
		logger.Log.Error("failed to follow table", zap.Int64("tableID", tableID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to follow table"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		follower.Run(ctx)
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	go follower.Run(ctx)

	// Reads only detect the close; spectators send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	var seq int64
	send := func() error {
		seq++
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(duel.OutgoingMessage{
			Type: duel.MsgSync,
			Seq:  seq,
			Data: duel.SyncPayload{Props: duel.PublicProps(mirror.Props())},
		})
	}
	if err := send(); err != nil {
		cancel()
		return
	}
	for range follower.Updates() {
		if err := send(); err != nil {
			logger.Log.Info("WS watch write error", zap.Int64("tableID", tableID), zap.Error(err))
			cancel()
			return
		}
	}
}
