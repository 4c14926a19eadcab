package http_room

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	http_common "github.com/ivanmolchanov/roomsync/internal/delivery/http/common"
	"github.com/ivanmolchanov/roomsync/internal/model"
	usecase_room "github.com/ivanmolchanov/roomsync/internal/usecase/room"
)

type Controller struct {
	usecase *usecase_room.Usecase
	logger  *slog.Logger
}

func New(usecase *usecase_room.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	rooms := router.Group("/rooms")
	{
		rooms.POST("", c.create)
		rooms.GET("/:room_code", c.info)
	}
	router.GET("/games", c.games)
}

type CreateRequestDTO struct {
	GameType string `json:"game_type" binding:"required"`
}

type RoomResponseDTO struct {
	RoomCode   string `json:"room_code"`
	GameType   string `json:"game_type"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

// create mints a new room code for a game type. The room itself comes
// into existence when the first client attaches to its channel.
func (c *Controller) create(ctx *gin.Context) {
	var req CreateRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
			Message: "invalid request format",
		})
		return
	}

	rec, err := c.usecase.Create(ctx, req.GameType)
	if err != nil {
		if errors.Is(err, usecase_room.ErrUnknownGameType) {
			ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{
				Message: "unknown game type",
			})
			return
		}
		c.logger.Error("failed to create room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusCreated, RoomResponseDTO{
		RoomCode:   string(rec.Code),
		GameType:   rec.GameType,
		MinPlayers: rec.MinPlayers,
		MaxPlayers: rec.MaxPlayers,
	})
}

func (c *Controller) info(ctx *gin.Context) {
	code := model.RoomCode(ctx.Param("room_code"))

	rec, err := c.usecase.Info(ctx, code)
	if err != nil {
		if errors.Is(err, usecase_room.ErrResourceNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{
				Message: "not found",
			})
			return
		}
		c.logger.Error("failed to get room info", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{
			Message: "internal error",
		})
		return
	}

	ctx.JSON(http.StatusOK, RoomResponseDTO{
		RoomCode:   string(rec.Code),
		GameType:   rec.GameType,
		MinPlayers: rec.MinPlayers,
		MaxPlayers: rec.MaxPlayers,
	})
}

func (c *Controller) games(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, model.AllGameConfigs())
}
