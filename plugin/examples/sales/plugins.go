package sales

import (
	"errors"
	"sync"

	"github.com/leeforge/interception/intercept"
	"github.com/leeforge/interception/plugin"
)

// ErrEmptyOrder is returned by OrderValidation for orders without quantities.
var ErrEmptyOrder = errors.New("order has no positive quantities")

// OrderValidation drops non-positive quantities before an invoice is
// prepared and rejects orders left empty.
type OrderValidation struct{}

func (OrderValidation) Name() string { return "order-validation" }

func (OrderValidation) Hooks(method string) plugin.Hooks {
	if method != "PrepareInvoice" {
		return plugin.Hooks{}
	}
	return plugin.Hooks{
		Before: func(_ any, args []any) ([]any, error) {
			qtys := intercept.Arg[map[int]float64](args, 2)
			kept := make(map[int]float64, len(qtys))
			for id, q := range qtys {
				if q > 0 {
					kept[id] = q
				}
			}
			if len(kept) == 0 {
				return nil, ErrEmptyOrder
			}
			if len(kept) == len(qtys) {
				return nil, nil
			}
			return []any{args[0], args[1], kept}, nil
		},
	}
}

// Discount lowers the total of every prepared invoice by Rate.
type Discount struct {
	Rate float64
}

func (d Discount) Name() string { return "discount" }

func (d Discount) Hooks(method string) plugin.Hooks {
	if method != "PrepareInvoice" {
		return plugin.Hooks{}
	}
	return plugin.Hooks{
		After: func(_ any, result any, _ []any) (any, error) {
			inv, ok := result.(*Invoice)
			if !ok || inv == nil {
				return result, nil
			}
			discounted := *inv
			discounted.Total = inv.Total * (1 - d.Rate)
			return &discounted, nil
		},
	}
}

// CommentCache serves GetCommentsList from memory until the invoice is
// voided.
type CommentCache struct {
	mu      sync.Mutex
	entries map[int][]string
}

func NewCommentCache() *CommentCache {
	return &CommentCache{entries: make(map[int][]string)}
}

func (c *CommentCache) Name() string { return "comment-cache" }

func (c *CommentCache) Hooks(method string) plugin.Hooks {
	switch method {
	case "GetCommentsList":
		return plugin.Hooks{Around: c.lookup}
	case "SetVoid":
		return plugin.Hooks{After: c.evict}
	}
	return plugin.Hooks{}
}

func (c *CommentCache) lookup(_ any, proceed plugin.Proceed, args []any) (any, error) {
	id := intercept.Arg[int](args, 1)

	c.mu.Lock()
	cached, ok := c.entries[id]
	c.mu.Unlock()
	if ok {
		return append([]string(nil), cached...), nil
	}

	res, err := proceed(nil)
	if err != nil {
		return nil, err
	}
	comments := intercept.Result[[]string](res)

	c.mu.Lock()
	c.entries[id] = append([]string(nil), comments...)
	c.mu.Unlock()
	return comments, nil
}

func (c *CommentCache) evict(_ any, result any, args []any) (any, error) {
	c.mu.Lock()
	delete(c.entries, intercept.Arg[int](args, 1))
	c.mu.Unlock()
	return result, nil
}

var (
	_ plugin.Plugin = OrderValidation{}
	_ plugin.Plugin = Discount{}
	_ plugin.Plugin = (*CommentCache)(nil)
	_ plugin.Named  = (*CommentCache)(nil)
)
