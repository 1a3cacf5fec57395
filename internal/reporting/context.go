package reporting

import (
	"context"
	"maps"
	"time"
)

type reportingMetaContextKey struct{}

// ReportingMeta is attached to every event reported from a context.
//
// Loader workers fill it per load: the identifier as an extra, the protocol as a tag and
// the time the load began, so a failed fetch can be traced back to the image and its scheme.
type ReportingMeta struct {
	tags      map[string]string
	extras    map[string]string
	startedAt time.Time
}

func MetaFromContext(ctx context.Context) ReportingMeta {
	meta, ok := ctx.Value(reportingMetaContextKey{}).(ReportingMeta)
	if !ok {
		return ReportingMeta{
			tags:   make(map[string]string),
			extras: make(map[string]string),
		}
	}

	// Copies, so loads running in parallel never share a map
	return ReportingMeta{
		tags:      maps.Clone(meta.tags),
		extras:    maps.Clone(meta.extras),
		startedAt: meta.startedAt,
	}
}

func withMeta(ctx context.Context, update func(meta *ReportingMeta)) context.Context {
	meta := MetaFromContext(ctx)
	update(&meta)
	return context.WithValue(ctx, reportingMetaContextKey{}, meta)
}

// SetStartedAtInContext records when the load began. Reports include the seconds since then.
func SetStartedAtInContext(ctx context.Context, startedAt time.Time) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		meta.startedAt = startedAt
	})
}

// AddExtrasToContext adds free-form data, e.g. the image identifier
func AddExtrasToContext(ctx context.Context, extras map[string]string) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.extras, extras)
	})
}

// AddTagsToContext adds searchable values with few distinct values, e.g. the protocol
func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.tags, tags)
	})
}
