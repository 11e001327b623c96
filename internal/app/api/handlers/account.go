package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/api/middleware"
	"github.com/jameswitika/iei.org.au/internal/app/service/member"
	"github.com/jameswitika/iei.org.au/internal/app/service/payment"
	"github.com/jameswitika/iei.org.au/pkg/response"
)

// @Summary      Account portal
// @Description  Returns the member's standing, the next subscription due, and recent payments.
// @Tags         Account
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/account/portal [get]
func ApiAccountPortal(svc *member.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.Actor(c)
		pc, err := svc.Portal(c.Request.Context(), actor.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(pc))
	}
}

// @Summary      Subscription history
// @Description  Lists the member's subscriptions, newest year first.
// @Tags         Account
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/account/subscriptions [get]
func ApiAccountSubscriptions(svc *member.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.Actor(c)
		m, err := svc.GetByUser(c.Request.Context(), actor.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		subs, err := svc.Subscriptions(c.Request.Context(), m.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(subs))
	}
}

type checkoutRequest struct {
	SubscriptionID uint64 `json:"subscription_id" binding:"required"`
}

type checkoutResponse struct {
	CheckoutID string `json:"checkout_id"`
	ApproveURL string `json:"approve_url"`
}

// @Summary      Start Stripe checkout
// @Description  Creates a hosted Stripe checkout session for an unpaid subscription.
// @Tags         Account
// @Accept       json
// @Produce      json
// @Param        request body handlers.checkoutRequest true "Subscription"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/account/checkout/stripe [post]
func ApiStripeCheckout(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		checkout, err := svc.StartStripeCheckout(c.Request.Context(), req.SubscriptionID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(checkoutResponse{CheckoutID: checkout.ID, ApproveURL: checkout.ApproveURL}))
	}
}

// @Summary      Start PayPal order
// @Description  Creates a PayPal order for an unpaid subscription.
// @Tags         Account
// @Accept       json
// @Produce      json
// @Param        request body handlers.checkoutRequest true "Subscription"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/account/checkout/paypal [post]
func ApiPayPalCheckout(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		checkout, err := svc.StartPayPalOrder(c.Request.Context(), req.SubscriptionID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(checkoutResponse{CheckoutID: checkout.ID, ApproveURL: checkout.ApproveURL}))
	}
}

type captureRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// @Summary      Capture PayPal order
// @Description  Captures an approved PayPal order on return from the approval page.
// @Tags         Account
// @Accept       json
// @Produce      json
// @Param        request body handlers.captureRequest true "Order"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/account/checkout/paypal/capture [post]
func ApiPayPalCapture(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req captureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		p, err := svc.CapturePayPalOrder(c.Request.Context(), req.OrderID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

func RegisterAccountRoutes(r gin.IRouter, memberSvc *member.Service, paySvc *payment.Service) {
	r.GET("/portal", ApiAccountPortal(memberSvc))
	r.GET("/subscriptions", ApiAccountSubscriptions(memberSvc))
	r.POST("/checkout/stripe", ApiStripeCheckout(paySvc))
	r.POST("/checkout/paypal", ApiPayPalCheckout(paySvc))
	r.POST("/checkout/paypal/capture", ApiPayPalCapture(paySvc))
}
