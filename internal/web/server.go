// Package web is the HTTP boundary: a thin webhook wrapper that always
// acknowledges the platform promptly, independent of handler outcome.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/internal/bot"
	"github.com/Laisky/telefiles/library/config"
	"github.com/Laisky/telefiles/library/log"
)

const shutdownTimeout = 10 * time.Second

// UpdateHandler consumes one decoded platform update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd tb.Update)
}

var _ UpdateHandler = (*bot.Dispatcher)(nil)

// NewRouter builds the gin engine with the webhook route.
func NewRouter(cfg *config.Config, handler UpdateHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Any("/telegram/webhook/:secret", func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		if c.Param("secret") != cfg.WebhookSecret {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		var upd tb.Update
		if err := json.NewDecoder(c.Request.Body).Decode(&upd); err != nil {
			log.Logger.Warn("unparsable webhook body", zap.Error(err))
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		reqID := uuid.NewString()
		log.Logger.Debug("got update",
			zap.String("req_id", reqID),
			zap.Int("update_id", upd.ID))
		handler.HandleUpdate(c.Request.Context(), upd)

		// always ACK so the platform does not redeliver
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}

// RunServer serves the router until ctx is done, then shuts down
// gracefully.
func RunServer(ctx context.Context, cfg *config.Config, handler UpdateHandler) error {
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: NewRouter(cfg, handler),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("listening", zap.String("addr", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen and serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown server")
}
