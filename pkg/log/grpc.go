package log

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// UnaryServerInterceptor injects a per-call logger into the handler context.
// Successful calls are logged at debug level, failures at warn.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		child := callLogger(ctx, logger, info.FullMethod)

		resp, err := handler(WithLogger(ctx, child), req)
		logCall(child, start, err, "unary call completed")
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor. Health Watch streams end up here.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		child := callLogger(ss.Context(), logger, info.FullMethod)

		err := handler(srv, &loggedStream{ServerStream: ss, ctx: WithLogger(ss.Context(), child)})
		logCall(child, start, err, "stream closed")
		return err
	}
}

func callLogger(ctx context.Context, logger zerolog.Logger, method string) zerolog.Logger {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 {
			id = vals[0]
		}
	}
	return logger.With().
		Str(FieldRequestID, requestID(id)).
		Str(FieldGRPCMethod, method).
		Logger()
}

func logCall(l zerolog.Logger, start time.Time, err error, msg string) {
	code := status.Code(err)
	evt := l.Debug()
	if code != codes.OK && code != codes.Canceled {
		evt = l.Warn().Err(err)
	}
	evt.Str(FieldGRPCCode, code.String()).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
		Msg(msg)
}

type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context {
	return s.ctx
}

// requestID returns id, or a new one when id is empty.
func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}
