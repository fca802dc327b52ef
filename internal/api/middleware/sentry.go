package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

// untracedPaths are polled by probes and scrapers and never get a
// transaction.
var untracedPaths = map[string]bool{"/health": true, "/metrics": true}

// SentryMiddleware starts a transaction per entry or watermark read, tags
// it with the request id and the authenticated client, and reports panics
// and 5xx responses. Without an initialized client it only costs the
// wrapping.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if untracedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}
		hub.Scope().SetRequest(r)

		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
			options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
		}

		transaction := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
		defer transaction.Finish()

		r = r.WithContext(sentry.SetHubOnContext(transaction.Context(), hub))

		requestID := GetRequestID(r.Context())
		if requestID != "" {
			hub.Scope().SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &sentryResponseRecorder{ResponseWriter: w, client: new(string)}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), clientSinkKey, rec.client)))

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		// /entries/{id} groups under one transaction name instead of one per id
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				transaction.Name = r.Method + " " + pattern
				transaction.Source = sentry.SourceRoute
			}
		}

		transaction.Status = httpStatusToSpanStatus(status)
		transaction.SetData("http.response.status_code", status)

		// auth runs inside this middleware, so the client comes back via the sink
		if client := *rec.client; client != "" {
			hub.Scope().SetTag("client", client)
			transaction.SetTag("client", client)
		}

		if status >= 500 {
			hub.CaptureMessage(fmt.Sprintf("%s returned %d (request %s)", transaction.Name, status, requestID))
		}
	})
}

// httpStatusToSpanStatus maps the statuses this API produces.
func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status == http.StatusUnauthorized:
		return sentry.SpanStatusUnauthenticated
	case status == http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case status == http.StatusConflict:
		return sentry.SpanStatusAlreadyExists
	case status == http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}

type sentryResponseRecorder struct {
	http.ResponseWriter
	status int
	client *string
}

const clientSinkKey contextKey = "sentry_client_sink"

// reportClient hands the authenticated client name back to SentryMiddleware.
func reportClient(ctx context.Context, client string) {
	if sink, ok := ctx.Value(clientSinkKey).(*string); ok {
		*sink = client
	}
}

func (r *sentryResponseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *sentryResponseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
