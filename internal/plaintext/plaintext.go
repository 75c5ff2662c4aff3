// Package plaintext serves one fixed text/plain body for every request,
// whatever its method or path.
package plaintext

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuo-hm/devdeck-backends/internal/domain"
	"github.com/kuo-hm/devdeck-backends/internal/observability"
)

const instrumentationName = "github.com/kuo-hm/devdeck-backends/internal/plaintext"

const requestIDKey = "request_id"

// Options configures a Responder.
type Options struct {
	// Service names the server in spans and logs.
	Service string
	// Body is written verbatim as the response to every request.
	Body string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// LogRequests emits one record per request with its method and path.
	LogRequests bool
	// Clock times requests. Defaults to domain.RealClock.
	Clock domain.Clock
}

// Responder is a gin engine with no routes: every request falls through to
// the no-route handler, which answers 200 with the fixed body.
type Responder struct {
	router      *gin.Engine
	service     string
	body        []byte
	logger      *slog.Logger
	logRequests bool
	clock       domain.Clock
	tracer      trace.Tracer
	inst        *observability.HTTPInstruments
}

var once sync.Once

// New builds the Responder. Tracer and meter are taken from the global OTel
// providers, so observability should be initialised first.
func New(opts Options) (*Responder, error) {
	once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = domain.RealClock{}
	}

	inst, err := observability.NewHTTPInstruments(observability.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("plaintext %s: %w", opts.Service, err)
	}

	rs := &Responder{
		service:     opts.Service,
		body:        []byte(opts.Body),
		logger:      opts.Logger,
		logRequests: opts.LogRequests,
		clock:       opts.Clock,
		tracer:      observability.Tracer(instrumentationName),
		inst:        inst,
	}

	r := gin.New()
	r.Use(
		rs.recoverPanics,
		rs.traceRequest,
		rs.tagRequest,
		rs.observeRequest,
	)
	r.NoRoute(rs.respond)

	rs.router = r
	return rs, nil
}

// Handler returns the http.Handler to mount on the listener.
func (rs *Responder) Handler() http.Handler {
	return rs.router
}

func (rs *Responder) respond(c *gin.Context) {
	c.Data(http.StatusOK, domain.ContentTypePlain, rs.body)
}

func (rs *Responder) recoverPanics(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			rs.logger.ErrorContext(c.Request.Context(), "panic serving request",
				slog.Any("panic", r),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}()
	c.Next()
}

func (rs *Responder) traceRequest(c *gin.Context) {
	req := c.Request
	ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

	ctx, span := rs.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			attribute.String("server.name", rs.service),
		),
	)
	defer span.End()

	c.Request = req.WithContext(ctx)
	c.Next()

	span.SetAttributes(semconv.HTTPResponseStatusCode(c.Writer.Status()))
}

func (rs *Responder) tagRequest(c *gin.Context) {
	id := uuid.NewString()
	c.Set(requestIDKey, id)
	c.Header(domain.RequestIDHeader, id)
	trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("request.id", id))
	c.Next()
}

// observeRequest records the request metrics and, when enabled, the single
// per-request log record.
func (rs *Responder) observeRequest(c *gin.Context) {
	start := rs.clock.Now()
	c.Next()
	elapsed := domain.Since(rs.clock, start)

	req := c.Request
	ctx := req.Context()
	status := c.Writer.Status()

	attrs := metric.WithAttributes(
		semconv.HTTPRequestMethodKey.String(req.Method),
		semconv.HTTPResponseStatusCode(status),
	)
	rs.inst.Requests.Add(ctx, 1, attrs)
	rs.inst.Duration.Record(ctx, elapsed.Seconds(), attrs)

	if !rs.logRequests {
		return
	}
	observability.WithTraceID(ctx, rs.logger).LogAttrs(ctx, slog.LevelInfo,
		req.Method+" "+req.URL.RequestURI(),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", elapsed),
		slog.String(requestIDKey, c.GetString(requestIDKey)),
	)
}
