package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/restbridge/internal/domain"
)

const instrumentationName = "github.com/i2y/restbridge"

// InvokeOperationUseCase runs one operation end to end: derive, resolve, compile,
// execute and decode.
type InvokeOperationUseCase struct {
	repository OperationRepository
	deriver    *SchemaDeriver
	compiler   *RequestCompiler
	transports TransportResolver
	decoder    *ResponseDecoder
	tracer     trace.Tracer
	calls      metric.Int64Counter
	duration   metric.Float64Histogram
	logger     *slog.Logger
}

// NewInvokeOperationUseCase creates a new InvokeOperationUseCase.
func NewInvokeOperationUseCase(
	repository OperationRepository,
	deriver *SchemaDeriver,
	compiler *RequestCompiler,
	transports TransportResolver,
	decoder *ResponseDecoder,
	logger *slog.Logger,
) *InvokeOperationUseCase {
	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("restbridge.invocations",
		metric.WithDescription("Number of operation invocations"))
	if err != nil {
		logger.Warn("Failed to create invocation counter", slog.Any("error", err))
	}
	duration, err := meter.Float64Histogram("restbridge.invocation.duration",
		metric.WithDescription("Duration of operation invocations"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("Failed to create invocation histogram", slog.Any("error", err))
	}
	return &InvokeOperationUseCase{
		repository: repository,
		deriver:    deriver,
		compiler:   compiler,
		transports: transports,
		decoder:    decoder,
		tracer:     otel.Tracer(instrumentationName),
		calls:      calls,
		duration:   duration,
		logger:     logger.With("usecase", "InvokeOperation"),
	}
}

// Execute invokes the named operation. Every failure after the operation lookup is a *domain.Error.
func (uc *InvokeOperationUseCase) Execute(ctx context.Context, name string, in *domain.Input) (*domain.Output, error) {
	if in == nil {
		in = &domain.Input{}
	}
	if in.TransactionID == "" {
		in.TransactionID = uuid.NewString()
	}
	log := uc.logger.With(slog.String("operation", name), slog.String("transaction_id", in.TransactionID))

	op, err := uc.repository.FindOperation(ctx, name)
	if err != nil {
		log.Warn("Operation not found", slog.Any("error", err))
		if closer, ok := in.Content.(io.Closer); ok {
			closer.Close()
		}
		return nil, fmt.Errorf("operation '%s': %w", name, err)
	}

	ctx, span := uc.tracer.Start(ctx, "restbridge.invoke", trace.WithAttributes(
		attribute.String("restbridge.operation", name),
		attribute.String("restbridge.transaction_id", in.TransactionID),
	))
	defer span.End()
	start := time.Now()

	out, err := uc.invoke(ctx, log, op, in)
	err = domain.Internal(err)

	attrs := []attribute.KeyValue{attribute.String("restbridge.operation", name)}
	if out != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
	}
	if err != nil {
		code := domain.CodeOf(err)
		attrs = append(attrs, attribute.String("restbridge.error_code", code))
		span.SetAttributes(attribute.String("restbridge.error_code", code))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		log.Error("Operation invocation failed", slog.String("code", code), slog.Any("error", err))
	} else {
		log.Info("Operation invocation successful", slog.Int("status_code", out.StatusCode))
	}
	if uc.calls != nil {
		uc.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if uc.duration != nil {
		uc.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
	return out, err
}

func (uc *InvokeOperationUseCase) invoke(ctx context.Context, log *slog.Logger, op *domain.Operation, in *domain.Input) (*domain.Output, error) {
	cfg, ep, schema := op.Snapshot(uc.deriver.Derive)
	rc := Resolve(cfg, ep, in)
	log.Debug("Resolved configuration",
		slog.String("host", rc.Host.Value), slog.String("host_source", string(rc.Host.Source)),
		slog.String("request_type", string(rc.RequestType.Value)),
		slog.String("response_type", string(rc.ResponseType.Value)),
		slog.String("http_client", rc.HTTPClient.Value))

	transport, err := uc.transports.Transport(rc.HTTPClient.Value)
	if err != nil {
		if closer, ok := in.Content.(io.Closer); ok {
			closer.Close()
		}
		return nil, err
	}

	comp, err := uc.compiler.Compile(ctx, cfg, ep, schema, rc, in)
	if err != nil {
		return nil, err
	}

	log.Info("Invoking remote operation", slog.String("method", comp.Request.Method), slog.String("target", comp.Request.Target))
	resp, err := transport.Execute(ctx, comp.Request, comp.Principal, comp.Secure, true)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, remoteError(resp)
	}
	return uc.decoder.Decode(resp, cfg, schema, rc)
}

// remoteError reads the whole body into the error and closes it.
func remoteError(resp *http.Response) error {
	var body []byte
	if resp.Body != nil {
		defer resp.Body.Close()
		var readErr error
		body, readErr = io.ReadAll(resp.Body)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			body = append(body, []byte("\n<body truncated: "+readErr.Error()+">")...)
		}
	}
	text := http.StatusText(resp.StatusCode)
	if resp.Status != "" {
		if len(resp.Status) > 4 {
			text = resp.Status[4:]
		}
	}
	return domain.RemoteError(resp.StatusCode, text, string(body))
}
