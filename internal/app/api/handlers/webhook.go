package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jameswitika/iei.org.au/internal/app/service/payment"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/response"
	"go.uber.org/zap"
)

// Webhook endpoints always acknowledge with 200 so the gateways stop
// retrying; reconcile failures are already recorded and audited internally.

// @Summary      Stripe Webhook
// @Description  Handles signed Stripe events. The body is the raw event payload.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/stripe [post]
func ApiStripeWebhook(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusOK, response.OKT[any](nil))
			return
		}
		err = svc.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			logctx.FromCtx(c, log).Errorw("webhook_stripe_handle_error", "error", err.Error())
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      PayPal Webhook
// @Description  Handles verified PayPal events. The body is the raw event payload.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /webhooks/paypal [post]
func ApiPayPalWebhook(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusOK, response.OKT[any](nil))
			return
		}
		err = svc.HandlePayPalWebhook(c.Request.Context(), c.Request.Header, payload)
		if err != nil {
			logctx.FromCtx(c, log).Errorw("webhook_paypal_handle_error", "error", err.Error())
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(svc, log))
	r.POST("/paypal", ApiPayPalWebhook(svc, log))
}
