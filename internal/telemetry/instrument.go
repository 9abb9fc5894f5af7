package telemetry

import (
	"context"

	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Directory wraps a TabDirectory with a span and a query metric.
type Directory struct {
	Next    reconciler.TabDirectory
	Tracer  trace.Tracer
	Metrics *Metrics
}

func (d *Directory) ListAudibleTabs(ctx context.Context) ([]media.TabHandle, error) {
	ctx, span := d.Tracer.Start(ctx, "directory.list_audible_tabs")
	defer span.End()

	tabs, err := d.Next.ListAudibleTabs(ctx)
	d.Metrics.RecordDirectory(ctx, len(tabs), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tabs.audible", len(tabs)))
	return tabs, nil
}

// Executor wraps a PageExecutor with one span per primitive call. Call
// metrics come from the CDP client's observer hook.
type Executor struct {
	Next   reconciler.PageExecutor
	Tracer trace.Tracer
}

func (e *Executor) RunInTab(ctx context.Context, tabID int64, call media.Call, out any) error {
	ctx, span := e.Tracer.Start(ctx, "page."+string(call.Primitive), trace.WithAttributes(
		attribute.Int64("tab.id", tabID),
		attribute.String("media.call", call.String()),
	))
	defer span.End()

	if err := e.Next.RunInTab(ctx, tabID, call, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
