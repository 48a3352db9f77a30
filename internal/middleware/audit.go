package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Audit emits one structured log line per request.
func Audit(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}

		switch {
		case err == nil:
			logger.Info("request completed", fields...)
		case fe != nil && fe.Code < fiber.StatusInternalServerError:
			logger.Info("request rejected", append(fields, zap.Error(err))...)
		default:
			logger.Error("request failed", append(fields, zap.Error(err))...)
		}
		return err
	}
}
