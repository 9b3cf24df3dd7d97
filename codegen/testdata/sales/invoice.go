package sales

import (
	"context"
	"fmt"
	"time"
)

type Order struct {
	ID int
}

type Invoice struct {
	ID    int
	Total float64
}

type CommentList struct {
	Items []string
}

// Notifier sends customer notifications.
type Notifier interface {
	Notify(ctx context.Context, id int) (bool, error)
}

// InvoiceManagement manages invoices.
type InvoiceManagement interface {
	Notifier
	fmt.Stringer

	SetCapture(ctx context.Context, id int) (bool, error)
	GetCommentsList(ctx context.Context, id int) (*CommentList, error)
	SetVoid(ctx context.Context, id int) (bool, error)
	PrepareInvoice(ctx context.Context, order *Order, qtys map[int]float64) (*Invoice, error)
	Touch(at time.Time)
	Tag(labels ...string) error
	Count() int
	MarshalJSON() ([]byte, error)
}
