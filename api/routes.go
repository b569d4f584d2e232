// Package api wires the operator HTTP surface.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	rh "github.com/coreybb/xianyu-autodeliver/route-handlers"
	"github.com/coreybb/xianyu-autodeliver/webutil"
)

const (
	apiBasePath        = "/api"
	deliveriesBasePath = "/deliveries"
	healthPath         = "/healthz"
	metricsPath        = "/metrics"
	tickPath           = "/scheduler/tick"
)

const (
	paramOrderID = "orderID"
)

const requestTimeout = 30 * time.Second

// SetupRoutes builds the operator router. metricsHandler and tickHandler are
// mounted as-is.
func SetupRoutes(
	deliveryHandler *rh.DeliveryHandler,
	metricsHandler http.Handler,
	tickHandler http.HandlerFunc,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get(healthPath, handleHealthCheck)
	r.Method(http.MethodGet, metricsPath, metricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(SetHeader(webutil.HeaderContentType, webutil.ContentTypeJSONUTF8))

		r.Route(apiBasePath, func(r chi.Router) {
			configureDeliveryRoutes(r, deliveryHandler, logger)
		})
		r.Post(tickPath, tickHandler)
	})

	return r
}

// Helper for constructing paths with a parameter
func pathWithParam(basePath string, paramName string) string {
	if basePath == "" {
		return "/{" + paramName + "}"
	}
	return basePath + "/{" + paramName + "}"
}

// --- Delivery Routes ---
func configureDeliveryRoutes(r chi.Router, handler *rh.DeliveryHandler, logger *zap.Logger) {
	r.Route(deliveriesBasePath, func(r chi.Router) {
		r.Get("/", webutil.MakeHandler(logger, handler.HandleListDeliveries))                          // GET /api/deliveries?limit=N
		r.Get(pathWithParam("", paramOrderID), webutil.MakeHandler(logger, handler.HandleGetDelivery)) // GET /api/deliveries/{orderID}
	})
}

// handleHealthCheck responds to a health check request.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	webutil.RespondWithText(w, http.StatusOK, "OK")
}
