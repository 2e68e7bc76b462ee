package web

import (
	"errors"
	"strconv"
	"time"

	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records the count and latency of every request by route
// pattern.
func Metrics(m *metrics.Registry) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError

			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		m.RecordHTTPRequest(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start))

		return err
	}
}

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler(m *metrics.Registry) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
}
