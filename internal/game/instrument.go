package game

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voidecho/voidecho-server-go/internal/game/rules"
)

const instrumentationName = "github.com/voidecho/voidecho-server-go/internal/game"

// DefaultSlowOperationThreshold is the duration above which a timed
// operation is logged at warn level.
const DefaultSlowOperationThreshold = 50 * time.Millisecond

// timed runs fn inside a span and logs its duration. Rejections are normal
// outcomes and do not mark the span as failed.
func (e *Engine) timed(ctx context.Context, op string, fields []zap.Field, fn func(ctx context.Context) error) error {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		switch f.Type {
		case zapcore.StringType:
			attrs = append(attrs, attribute.String(f.Key, f.String))
		case zapcore.Int64Type:
			attrs = append(attrs, attribute.Int64(f.Key, f.Integer))
		}
	}
	ctx, span := e.tracer.Start(ctx, "game."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	var rejected *rules.RejectionError
	if err != nil && !errors.As(err, &rejected) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	logFields := append([]zap.Field{zap.String("op", op), zap.Duration("duration", elapsed)}, fields...)
	if elapsed > e.cfg.SlowOperationThreshold {
		e.logger.Warn("slow game operation", logFields...)
	} else {
		e.logger.Debug("game operation", logFields...)
	}
	return err
}
