// Package external pins the Go-side interfaces for subsystems this
// service treats as out of scope, so the rest of the service compiles
// and tests against fakes without those subsystems existing: markdown
// conversion, PDF/DOC extraction, and plan lookup.
package external

import "context"

// MarkdownConverter converts fetched HTML into markdown. Prescribing how
// markdown is produced is out of scope — this interface only pins the
// shape a worker depends on.
type MarkdownConverter interface {
	Convert(ctx context.Context, html string) (string, error)
}

// DocumentExtractor turns a binary document (PDF/DOC/DOCX) into text.
// Explicit Non-goal: no implementation ships in this service.
type DocumentExtractor interface {
	Extract(ctx context.Context, content []byte, contentType string) (string, error)
}

// PlanLookup resolves a tenant's plan for Priority Policy's basePriority
// monotonicity rule. Explicit Non-goal: billing/plan
// management is out of scope — this interface only pins what the
// coordinator needs to read.
type PlanLookup interface {
	PlanForTenant(ctx context.Context, tenantID string) (string, error)
}
