package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/estimapres/edgehub/internal/server"
	"github.com/estimapres/edgehub/internal/worker"
)

// maxMessageBytes 限制控制通道消息体大小，合法消息只有 SKIP_WAITING。
const maxMessageBytes = 256

// RegisterWorkerRoutes 暴露 /-/worker 诊断接口与 /-/worker/message 控制通道。
func RegisterWorkerRoutes(w *worker.Worker, dispatcher *worker.Dispatcher, logger *logrus.Logger) server.RouteRegistrar {
	return func(app *fiber.App) {
		if app == nil || w == nil || dispatcher == nil {
			return
		}

		app.Get("/-/worker", func(c fiber.Ctx) error {
			status, err := w.Snapshot(c.Context())
			if err != nil {
				logger.WithError(err).WithField("action", "diagnostics").Warn("worker_snapshot_failed")
				return server.WriteError(c, fiber.StatusInternalServerError, "snapshot_failed")
			}
			return c.JSON(status)
		})

		app.Post("/-/worker/message", func(c fiber.Ctx) error {
			body := c.Body()
			if len(body) > maxMessageBytes {
				return server.WriteError(c, fiber.StatusRequestEntityTooLarge, "message_too_large")
			}
			msg := strings.TrimSpace(string(body))
			outcome, err := dispatcher.Dispatch(c.Context(), worker.Event{Kind: worker.EventMessage, Message: msg})
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"action":     "message",
					"request_id": server.RequestID(c),
				}).Error("worker_message_failed")
				return server.WriteError(c, fiber.StatusConflict, "message_failed")
			}
			return c.JSON(fiber.Map{
				"accepted": msg == worker.MessageSkipWaiting,
				"state":    outcome.State,
			})
		})
	}
}

// RegisterMetricsRoute 通过 adaptor 挂载 Prometheus 默认注册表。
func RegisterMetricsRoute() server.RouteRegistrar {
	return func(app *fiber.App) {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}
}
