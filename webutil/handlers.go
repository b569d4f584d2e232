package webutil

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coreybb/xianyu-autodeliver/datastore"
)

// AppHandler represents a handler function that returns an error.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// MakeHandler adapts an AppHandler to http.HandlerFunc. A returned error is
// logged and turned into a JSON error body unless the handler already wrote
// a response.
func MakeHandler(logger *zap.Logger, handler AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		err := handler(ww, r)
		if err == nil {
			return
		}

		log := logger.With(zap.String("path", r.URL.Path), zap.String("method", r.Method))

		var httpErr *HTTPError
		var publicMessage string
		var statusCode int

		switch {
		case errors.As(err, &httpErr):
			statusCode = httpErr.Code
			publicMessage = httpErr.Message
			level := zapcore.WarnLevel
			if statusCode >= 500 {
				level = zapcore.ErrorLevel
			}
			fields := []zap.Field{zap.Int("code", httpErr.Code), zap.String("msg", httpErr.Message)}
			if cause := errors.Unwrap(httpErr); cause != nil && cause.Error() != publicMessage {
				fields = append(fields, zap.NamedError("cause", cause))
			}
			log.Log(level, "Client error response", fields...)

		case errors.Is(err, datastore.ErrNotFound):
			statusCode = http.StatusNotFound
			publicMessage = msgNotFound
			log.Info("Resource not found", zap.Error(err))

		default:
			statusCode = http.StatusInternalServerError
			publicMessage = msgInternalServer
			log.Error("Unhandled internal error", zap.Error(err))
		}

		if ww.Status() != 0 {
			log.Warn("Handler returned error after writing response header", zap.Error(err))
			return
		}

		RespondWithError(ww, statusCode, publicMessage)
	}
}
