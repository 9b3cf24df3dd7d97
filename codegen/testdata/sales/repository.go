package sales

import "context"

type base struct{}

func (base) Ping(ctx context.Context) error { return nil }

func (base) Save(ctx context.Context, inv *Invoice) error { return nil }

// Repository stores invoices.
type Repository struct {
	base
	items map[int]*Invoice
}

func (r *Repository) Save(ctx context.Context, inv *Invoice) error {
	r.items[inv.ID] = inv
	return nil
}

func (r *Repository) Find(_ context.Context, id int) (*Invoice, error) {
	return r.items[id], nil
}

func (r *Repository) Clone() *Repository { return r }

func (r *Repository) reset() { r.items = nil }
