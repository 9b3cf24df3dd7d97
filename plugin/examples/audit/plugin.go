package audit

import (
	"sync"
	"time"

	"github.com/leeforge/interception/intercept"
	"github.com/leeforge/interception/plugin"
	"go.uber.org/zap"
)

// AuditPlugin records every intercepted call of the types it is configured
// for. Declared on an embedded interface, it audits every subject embedding
// it.
//
// Implements: Plugin, Named
type AuditPlugin struct {
	service *AuditService
}

// New creates an audit plugin writing to service.
func New(service *AuditService) *AuditPlugin {
	return &AuditPlugin{service: service}
}

// --- Core Interface (mandatory) ---

func (p *AuditPlugin) Name() string { return "audit" }

func (p *AuditPlugin) Hooks(method string) plugin.Hooks {
	return plugin.Hooks{
		Before: func(subject any, args []any) ([]any, error) {
			p.service.Record(Entry{Subject: subjectType(subject), Method: method, Phase: plugin.PhaseBefore})
			return nil, nil
		},
		After: func(subject any, result any, _ []any) (any, error) {
			p.service.Record(Entry{Subject: subjectType(subject), Method: method, Phase: plugin.PhaseAfter})
			return result, nil
		},
	}
}

// --- Compile-time interface checks ---

var (
	_ plugin.Plugin = (*AuditPlugin)(nil)
	_ plugin.Named  = (*AuditPlugin)(nil)
)

// --- Internal ---

func subjectType(subject any) string {
	if s, ok := subject.(intercept.Subject); ok {
		return s.SubjectType()
	}
	return ""
}

// Entry is one audit record.
type Entry struct {
	Subject string
	Method  string
	Phase   plugin.Phase
	At      time.Time
}

// AuditService handles audit log storage and retrieval.
type AuditService struct {
	logger  *zap.Logger
	mu      sync.Mutex
	entries []Entry
}

func NewAuditService(logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{logger: logger.Named("audit")}
}

func (s *AuditService) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	s.logger.Info("audit record",
		zap.String("type", e.Subject),
		zap.String("method", e.Method),
		zap.Stringer("phase", e.Phase),
	)
}

// Entries returns a snapshot of the recorded entries.
func (s *AuditService) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}
