package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/chxlky/github-project-sync/internal/syncer"
	"github.com/chxlky/github-project-sync/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodySize matches GitHub's documented 25 MB cap on webhook payloads.
const maxBodySize = 25 << 20

// Processor runs one delivery to completion.
type Processor interface {
	Process(ctx context.Context, env syncer.Envelope) (models.Outcome, error)
}

type Handler struct {
	Syncer Processor
	Logger *zap.Logger
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GitHubWebhookHandler(c *gin.Context) {
	deliveryID := c.GetHeader("X-GitHub-Delivery")
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	logger := h.Logger.With(zap.String("delivery", deliveryID))

	// Unsigned requests are refused before the body is read.
	signature := c.GetHeader("X-Hub-Signature-256")
	if !webhook.HasSignature(signature) {
		logger.Warn("Webhook without signature", zap.String("event", c.GetHeader("X-GitHub-Event")))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize+1))
	if err != nil {
		logger.Error("Failed to read request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxBodySize {
		logger.Warn("Webhook payload too large", zap.Int("size", len(body)))
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload too large"})
		return
	}

	outcome, err := h.Syncer.Process(c.Request.Context(), syncer.Envelope{
		Body:       body,
		Signature:  signature,
		EventType:  c.GetHeader("X-GitHub-Event"),
		DeliveryID: deliveryID,
	})
	if err != nil {
		status, message := errorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Webhook processing failed", zap.Int("status", status), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, outcomeBody(outcome))
}

// errorStatus maps the error taxonomy onto response codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid signature"
	case errors.Is(err, models.ErrMalformedPayload):
		return http.StatusBadRequest, "invalid payload"
	case errors.Is(err, models.ErrUpstream):
		return http.StatusBadGateway, "github request failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func outcomeBody(o models.Outcome) gin.H {
	if !o.Applied {
		return gin.H{"status": "ignored", "reason": o.Reason}
	}
	status := "added"
	if o.Status == models.StatusDone {
		status = "done"
	}
	return gin.H{"status": status, "item_id": o.ItemID}
}
