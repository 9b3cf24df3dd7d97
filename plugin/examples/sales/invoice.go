// Package sales is a small invoicing service whose interface is intercepted
// by the plugins in this package and in the audit example.
package sales

//go:generate go run github.com/leeforge/interception/cmd/interceptgen -type InvoiceManagement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInvoiceNotFound is returned for unknown invoice ids.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Invoice is a prepared order.
type Invoice struct {
	ID       int
	Order    int
	Items    map[int]float64 // product id -> quantity
	Total    float64
	Voided   bool
	Comments []string
}

// Notifier sends invoice notifications.
type Notifier interface {
	Notify(ctx context.Context, id int) error
}

// InvoiceManagement is the intercepted subject.
type InvoiceManagement interface {
	Notifier

	PrepareInvoice(ctx context.Context, order int, qtys map[int]float64) (*Invoice, error)
	GetCommentsList(ctx context.Context, id int) ([]string, error)
	SetVoid(ctx context.Context, id int) error
	Total(id int) float64
}

// Service keeps invoices in memory.
type Service struct {
	mu       sync.Mutex
	prices   map[int]float64
	invoices map[int]*Invoice
	nextID   int

	// Notified lists the ids passed to Notify, in call order.
	Notified []int
	// CommentReads counts GetCommentsList calls that reached the service.
	CommentReads int
}

var _ InvoiceManagement = (*Service)(nil)

// NewService creates a service selling products at the given unit prices.
func NewService(prices map[int]float64) *Service {
	return &Service{
		prices:   prices,
		invoices: make(map[int]*Invoice),
		nextID:   1,
	}
}

// PrepareInvoice creates an invoice for order.
func (s *Service) PrepareInvoice(ctx context.Context, order int, qtys map[int]float64) (*Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]int, 0, len(qtys))
	for id := range qtys {
		products = append(products, id)
	}
	sort.Ints(products)

	inv := &Invoice{ID: s.nextID, Order: order, Items: make(map[int]float64, len(qtys))}
	for _, id := range products {
		price, ok := s.prices[id]
		if !ok {
			return nil, fmt.Errorf("unknown product %d", id)
		}
		inv.Items[id] = qtys[id]
		inv.Total += price * qtys[id]
	}
	inv.Comments = []string{fmt.Sprintf("prepared for order %d", order)}

	s.invoices[inv.ID] = inv
	s.nextID++
	return inv, nil
}

// GetCommentsList returns a copy of the invoice comments.
func (s *Service) GetCommentsList(_ context.Context, id int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CommentReads++
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return append([]string(nil), inv.Comments...), nil
}

// SetVoid voids an invoice.
func (s *Service) SetVoid(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.Voided = true
	inv.Comments = append(inv.Comments, "voided")
	return nil
}

// Total returns the invoice total, 0 for unknown or voided invoices.
func (s *Service) Total(id int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok || inv.Voided {
		return 0
	}
	return inv.Total
}

// Notify records a notification.
func (s *Service) Notify(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return ErrInvoiceNotFound
	}
	s.Notified = append(s.Notified, id)
	return nil
}
