package dispatch

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-dispatch/internal/domain"
	"github.com/ignite/outreach-dispatch/internal/waterfall"
)

// Enrich handles a "lead needs enrichment" event: it runs the waterfall for
// each missing field. It returns ok=false without doing anything when
// another run holds the lead.
func (o *Orchestrator) Enrich(ctx context.Context, leadID string, fields ...domain.ContactField) ([]*waterfall.Resolution, bool, error) {
	lock := o.locks("enrich:" + leadID)
	held, err := lock.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lock enrich %s: %w", leadID, err)
	}
	if !held {
		return nil, false, nil
	}
	defer o.unlock(ctx, lock, "enrich:"+leadID)

	lead, err := o.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, true, fmt.Errorf("get lead %s: %w", leadID, err)
	}
	if lead.Suppressed {
		return nil, true, nil
	}
	out := make([]*waterfall.Resolution, 0, len(fields))
	for _, f := range fields {
		res, err := o.resolver.Resolve(ctx, lead, f)
		if err != nil {
			return out, true, fmt.Errorf("resolve %s for %s: %w", f, leadID, err)
		}
		out = append(out, res)
	}
	return out, true, nil
}
