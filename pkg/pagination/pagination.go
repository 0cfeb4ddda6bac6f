package pagination

import "context"

// Page is one window over a larger result set.
type Page[T any] struct {
	Offset     int
	Limit      int
	TotalCount int64
	Items      []T
}

// NextOffset returns the offset of the following page, or -1 when this is the last one.
func (p *Page[T]) NextOffset() int {
	next := p.Offset + len(p.Items)
	if len(p.Items) == 0 || int64(next) >= p.TotalCount {
		return -1
	}
	return next
}

// Empty returns a page with no items.
func Empty[T any](offset, limit int) *Page[T] {
	return &Page[T]{Offset: offset, Limit: limit, Items: []T{}}
}

// BuildFunc fetches one page from a single named source.
type BuildFunc[T any] func(ctx context.Context, source string, offset, limit int) (*Page[T], error)

// FromSources spans a global offset/limit window across several sources
// (typically one per plugin), consumed in the given order. A source whose
// build fails is reported through onError and skipped.
func FromSources[T any](
	ctx context.Context,
	sources []string,
	offset, limit int,
	build BuildFunc[T],
	onError func(source string, err error),
) *Page[T] {
	result := Empty[T](offset, limit)
	remaining := offset

	for _, source := range sources {
		if len(result.Items) >= limit {
			break
		}
		if ctx.Err() != nil {
			break
		}

		page, err := build(ctx, source, remaining, limit-len(result.Items))
		if err != nil {
			if onError != nil {
				onError(source, err)
			}
			continue
		}

		result.TotalCount += page.TotalCount
		if int64(remaining) >= page.TotalCount {
			remaining -= int(page.TotalCount)
			continue
		}
		remaining = 0

		for _, item := range page.Items {
			if len(result.Items) >= limit {
				break
			}
			result.Items = append(result.Items, item)
		}
	}

	return result
}
