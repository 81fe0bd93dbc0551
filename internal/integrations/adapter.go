package integrations

import (
	"context"

	"pickbatch/internal/batching"
)

// OrderSource is an upstream system orders for a wave are pulled from.
type OrderSource interface {
	Name() string
	FetchOrders(ctx context.Context, cursor string) (OrderBatch, error)
}

// OrderBatch is one page of orders. An empty Cursor means the source is
// drained.
type OrderBatch struct {
	Orders []batching.Order
	Cursor string
}

// FetchAll drains src.
func FetchAll(ctx context.Context, src OrderSource) ([]batching.Order, error) {
	var out []batching.Order
	cursor := ""
	for {
		page, err := src.FetchOrders(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Orders...)
		if page.Cursor == "" || page.Cursor == cursor {
			return out, nil
		}
		cursor = page.Cursor
	}
}
