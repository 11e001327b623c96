package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/api/middleware"
	"github.com/jameswitika/iei.org.au/internal/app/service/application"
	"github.com/jameswitika/iei.org.au/internal/app/service/board"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/response"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid id"))
		return 0, false
	}
	return id, true
}

func respondServiceError(c *gin.Context, err error) {
	code := response.APIResponseCodeError
	if errs.IsValidation(err) || errs.IsNotFound(err) {
		code = response.APIResponseCodeBadRequest
	}
	c.JSON(http.StatusOK, response.ErrorT[any](code, err.Error()))
}

// @Summary      View application for board review
// @Description  Returns the application and stamps the director's view times.
// @Tags         Board
// @Produce      json
// @Param        id path int true "Application ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/board/applications/{id} [get]
func ApiBoardViewApplication(appSvc *application.Service, boardSvc *board.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		actor := middleware.Actor(c)

		app, err := appSvc.Get(c.Request.Context(), id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		if err := boardSvc.MarkViewed(c.Request.Context(), id, actor.ID); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(app))
	}
}

type castVoteRequest struct {
	Vote types.VoteChoice `json:"vote" binding:"required"`
	Note string           `json:"note"`
}

// @Summary      Cast board vote
// @Description  Records the director's vote and finalizes the application when a threshold is reached.
// @Tags         Board
// @Accept       json
// @Produce      json
// @Param        id path int true "Application ID"
// @Param        request body handlers.castVoteRequest true "Vote"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/board/applications/{id}/vote [post]
func ApiBoardCastVote(boardSvc *board.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req castVoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		actor := middleware.Actor(c)

		if err := boardSvc.CastVote(c.Request.Context(), id, actor.ID, req.Vote, req.Note); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterBoardRoutes(r gin.IRouter, appSvc *application.Service, boardSvc *board.Service) {
	r.GET("/applications/:id", ApiBoardViewApplication(appSvc, boardSvc))
	r.POST("/applications/:id/vote", ApiBoardCastVote(boardSvc))
}
