package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"roulette-service/internal/middleware"
	"roulette-service/internal/service"
	"roulette-service/internal/service/table"
	"roulette-service/internal/ws"
	"roulette-service/pkg/response"
	"roulette-service/pkg/utils/geo"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Table, services.RDB)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/rouletteService/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handler.Register)
			authGroup.POST("/login", handler.Login)
		}

		v1.GET("/me", middleware.AuthRequired(), handler.GetProfile)

		tableGroup := v1.Group("/tables")
		tableGroup.Use(middleware.AuthRequired())
		{
			tableGroup.GET("", handler.ListTables)
			tableGroup.POST("", handler.CreateTable)
			tableGroup.GET("/code/:code", handler.GetTableByCode)
			tableGroup.GET("/:id", handler.GetTable)
			tableGroup.POST("/:id/join", handler.JoinTable)
			tableGroup.POST("/:id/leave", handler.LeaveTable)
			tableGroup.POST("/:id/start", handler.StartMatch)
			tableGroup.POST("/:id/fire", handler.Fire)
			tableGroup.POST("/:id/bots", handler.AddBot)
			tableGroup.GET("/:id/state", handler.TableState)
			tableGroup.GET("/:id/history", handler.TableHistory)
			tableGroup.GET("/:id/history/:matchId", handler.MatchDetail)
		}
	}

	r.GET("/ws/table/:tableId", wsHandler.HandleTableWS)
	r.GET("/ws/table/:tableId/watch", wsHandler.HandleWatchWS)
}

type credentialsBody struct {
	Nickname string `json:"nickname" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type createTableBody struct {
	Name      string              `json:"name"`
	SeatCount int                 `json:"seatCount" binding:"omitempty,min=2,max=9"`
	Rules     table.RuleOverrides `json:"rules"`
}

type joinTableBody struct {
	Position *geo.Point `json:"position"`
}

type fireBody struct {
	TargetID  int64  `json:"targetId,string" binding:"required"`
	RequestID string `json:"requestId"`
}

type addBotBody struct {
	Mode string `json:"mode"`
}

func (h *Handler) Register(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.services.Auth.Register(c.Request.Context(), body.Nickname, body.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var body credentialsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.services.Auth.Login(c.Request.Context(), body.Nickname, body.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, resp)
}

func (h *Handler) GetProfile(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	info, err := h.services.Auth.GetPlayer(c.Request.Context(), playerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, info)
}

func (h *Handler) ListTables(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Table.ListOpen(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) CreateTable(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body createTableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.services.Table.CreateTable(c.Request.Context(), playerID, table.CreateTableParams{
		Name:      strings.TrimSpace(body.Name),
		SeatCount: body.SeatCount,
		Rules:     body.Rules,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, created)
}

func (h *Handler) GetTable(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	found, err := h.services.Table.GetTable(c.Request.Context(), tableID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, found)
}

func (h *Handler) GetTableByCode(c *gin.Context) {
	found, err := h.services.Table.GetTableByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, found)
}

func (h *Handler) JoinTable(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	var body joinTableBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	state, err := h.services.Table.Join(c.Request.Context(), playerID, tableID, body.Position)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *Handler) LeaveTable(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	if err := h.services.Table.Leave(c.Request.Context(), playerID, tableID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "left table")
}

func (h *Handler) StartMatch(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	if err := h.services.Table.Start(c.Request.Context(), playerID, tableID); err != nil {
		response.FromError(c, err)
		return
	}
	state, err := h.services.Table.State(c.Request.Context(), playerID, tableID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *Handler) Fire(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	var body fireBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if body.RequestID == "" {
		body.RequestID = uuid.NewString()
	}

	result, err := h.services.Table.Fire(c.Request.Context(), playerID, tableID, body.TargetID, body.RequestID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"requestId": body.RequestID,
		"result":    result,
	})
}

func (h *Handler) AddBot(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	var body addBotBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	actor, err := h.services.Table.AddBot(c.Request.Context(), playerID, tableID, strings.TrimSpace(body.Mode))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"actorId": actor.String()})
}

func (h *Handler) TableState(c *gin.Context) {
	playerID, tableID, ok := h.playerAndTable(c)
	if !ok {
		return
	}
	state, err := h.services.Table.State(c.Request.Context(), playerID, tableID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, state)
}

func (h *Handler) TableHistory(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, err := parsePositiveIntQuery(c, "limit", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := h.services.Table.History(c.Request.Context(), tableID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"items": matches})
}

func (h *Handler) MatchDetail(c *gin.Context) {
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	matchID, ok := parseIDParam(c, "matchId")
	if !ok {
		return
	}

	detail, err := h.services.Table.MatchDetail(c.Request.Context(), tableID, matchID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *Handler) playerAndTable(c *gin.Context) (int64, int64, bool) {
	playerID, ok := getPlayerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}
	tableID, ok := parseIDParam(c, "id")
	if !ok {
		return 0, 0, false
	}
	return playerID, tableID, true
}

func parseIDParam(c *gin.Context, key string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return 0, false
	}
	return id, true
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func getPlayerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.ContextPlayerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id != 0
}
