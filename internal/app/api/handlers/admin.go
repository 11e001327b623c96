package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/jameswitika/iei.org.au/internal/app/api/middleware"
	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/application"
	"github.com/jameswitika/iei.org.au/internal/app/service/member"
	"github.com/jameswitika/iei.org.au/internal/app/service/payment"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/pkg/response"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

// @Summary      List Applications (Admin)
// @Description  Retrieves a paginated and filterable list of membership applications.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body application.ScanApplicationsRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/applications [post]
func ApiListApplications(svc *application.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req application.ScanApplicationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanApplications(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Application votes (Admin)
// @Description  Returns the board vote rows for one application.
// @Tags         Admin
// @Produce      json
// @Param        id path int true "Application ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/applications/{id}/votes [get]
func ApiApplicationVotes(svc *application.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		votes, err := svc.Votes(c.Request.Context(), id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(votes))
	}
}

type decideRequest struct {
	Decision application.Decision `json:"decision" binding:"required"`
}

// @Summary      Decide pre-approval (Admin)
// @Description  Applies the officer's preapprove or reject decision to a pending application.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path int true "Application ID"
// @Param        request body handlers.decideRequest true "Decision"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/applications/{id}/decide [post]
func ApiDecideApplication(svc *application.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req decideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		actor := middleware.Actor(c)
		if err := svc.Decide(c.Request.Context(), id, req.Decision, actor.ID); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type resetVoteRequest struct {
	DirectorUserID uint64 `json:"director_user_id" binding:"required"`
}

// @Summary      Reset director vote (Admin)
// @Description  Clears one director's vote back to unanswered while the application is in board review.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path int true "Application ID"
// @Param        request body handlers.resetVoteRequest true "Director"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/applications/{id}/reset-vote [post]
func ApiResetVote(svc *application.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req resetVoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		actor := middleware.Actor(c)
		if err := svc.ResetVote(c.Request.Context(), id, req.DirectorUserID, actor.ID); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Remind non-responding directors (Admin)
// @Description  Emails every enabled director who has not yet voted on the application.
// @Tags         Admin
// @Produce      json
// @Param        id path int true "Application ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/applications/{id}/remind [post]
func ApiSendReminder(svc *application.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		actor := middleware.Actor(c)
		if err := svc.SendReminder(c.Request.Context(), id, actor.ID); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      List Members (Admin)
// @Description  Retrieves a paginated and filterable list of members.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body member.ScanMembersRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/members [post]
func ApiListMembers(svc *member.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req member.ScanMembersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanMembers(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type PaymentItem struct {
	ID             uint64               `json:"id"`
	MemberID       uint64               `json:"member_id"`
	SubscriptionID *uint64              `json:"subscription_id"`
	Amount         string               `json:"amount"`
	Currency       string               `json:"currency"`
	Gateway        types.PaymentGateway `json:"gateway"`
	Status         types.PaymentStatus  `json:"status"`
	Reference      string               `json:"reference"`
	ReceivedAt     *time.Time           `json:"received_at"`
	CreatedAt      time.Time            `json:"created_at"`
}

func toPaymentItem(m *models.Payment) *PaymentItem {
	return &PaymentItem{
		ID:             m.ID,
		MemberID:       m.MemberID,
		SubscriptionID: m.SubscriptionID,
		Amount:         m.Amount.StringFixed(2),
		Currency:       m.Currency,
		Gateway:        m.Gateway,
		Status:         m.Status,
		Reference:      m.Reference,
		ReceivedAt:     m.ReceivedAt,
		CreatedAt:      m.CreatedAt,
	}
}

type ListPaymentsResponse struct {
	Items []*PaymentItem `json:"items"`
	Total int64          `json:"total"`
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable view of the payment ledger.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body payment.ScanPaymentsRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/payments [post]
func ApiListPayments(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ScanPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanPayments(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(res.Items, func(it *models.Payment, _ int) *PaymentItem { return toPaymentItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{Items: items, Total: res.Total}))
	}
}

// @Summary      List Activity Log (Admin)
// @Description  Retrieves a paginated and filterable view of the audit trail.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body activitylog.ScanEntriesRequest true "List request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/activity [post]
func ApiListActivity(svc *activitylog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activitylog.ScanEntriesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.ScanEntries(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type markPaidRequest struct {
	Reference string `json:"reference"`
}

// @Summary      Mark subscription paid (Admin)
// @Description  Records a manual payment for the outstanding amount and activates the subscription.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        id path int true "Subscription ID"
// @Param        request body handlers.markPaidRequest true "Optional reference"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/subscriptions/{id}/mark-paid [post]
func ApiMarkSubscriptionPaid(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req markPaidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		actor := middleware.Actor(c)
		p, err := svc.MarkPaidManually(c.Request.Context(), id, req.Reference, actor.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Import members CSV (Admin)
// @Description  Onboards historical members from an uploaded CSV file.
// @Tags         Admin
// @Accept       multipart/form-data
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/members/import [post]
func ApiImportMembers(svc *member.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("members_csv")
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "CSV upload failed, please choose a valid file"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "uploaded CSV payload is invalid"))
			return
		}
		defer f.Close()

		actor := middleware.Actor(c)
		report, err := svc.ImportCSV(c.Request.Context(), f, actor.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(report))
	}
}

func RegisterAdminRoutes(r gin.IRouter, appSvc *application.Service, memberSvc *member.Service, paySvc *payment.Service, audit *activitylog.Service) {
	r.POST("/applications", ApiListApplications(appSvc))
	r.GET("/applications/:id/votes", ApiApplicationVotes(appSvc))
	r.POST("/applications/:id/decide", ApiDecideApplication(appSvc))
	r.POST("/applications/:id/reset-vote", ApiResetVote(appSvc))
	r.POST("/applications/:id/remind", ApiSendReminder(appSvc))
	r.POST("/members", ApiListMembers(memberSvc))
	r.POST("/members/import", ApiImportMembers(memberSvc))
	r.POST("/payments", ApiListPayments(paySvc))
	r.POST("/activity", ApiListActivity(audit))
	r.POST("/subscriptions/:id/mark-paid", ApiMarkSubscriptionPaid(paySvc))
}
