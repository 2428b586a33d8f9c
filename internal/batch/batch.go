// Package batch splits lookups into store-sized batches and runs fan-outs
// whose results keep the order of their inputs.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultSize is the largest "in" filter the remote store accepts.
const DefaultSize = 10

// DefaultConcurrency bounds the number of in-flight calls of one fan-out.
const DefaultConcurrency = 8

// Chunk splits items into consecutive groups of at most size elements.
// A non-positive size uses DefaultSize.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// Map calls fn for every item concurrently and returns the results at the
// index of their input. The first error cancels the remaining calls and is
// returned; callers that tolerate partial failure should swallow errors
// inside fn.
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]R, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Unique returns items without duplicates, keeping first occurrences.
func Unique[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
