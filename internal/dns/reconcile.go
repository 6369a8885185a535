package dns

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/homeproxy/internal/console"
	"github.com/edvin/homeproxy/internal/prompt"
)

// Action is what reconciliation did for one domain.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionReplaced  Action = "replaced"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Outcome is the result for one domain.
type Outcome struct {
	Domain string
	Action Action
	// Fatal marks a failed create.
	Fatal bool
	Err   error
}

// Report collects the outcomes of one reconciliation pass.
type Report struct {
	Outcomes []Outcome
}

// Count returns how many domains ended with action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Err joins the fatal failures, wrapped in ErrCreateFailed, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Fatal {
			errs = append(errs, fmt.Errorf("%s: %w", o.Domain, o.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCreateFailed, errors.Join(errs...))
}

// Reconciler converges one A record per selected domain onto a target
// address.
type Reconciler struct {
	provider Provider
	prompter prompt.Prompter
	out      *console.Console
	logger   zerolog.Logger
}

func NewReconciler(logger zerolog.Logger, provider Provider, p prompt.Prompter, out *console.Console) *Reconciler {
	return &Reconciler{
		provider: provider,
		prompter: p,
		out:      out,
		logger:   logger.With().Str("component", "dns").Str("provider", provider.Name()).Logger(),
	}
}

// Reconcile processes every selection even when some fail. The returned
// error is non-nil only when a record could not be created.
func (r *Reconciler) Reconcile(ctx context.Context, selections []Selection, target string) (*Report, error) {
	report := &Report{}
	for _, sel := range selections {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.out.Step("Configuring DNS for %s", sel.Domain)
		outcome := r.reconcileOne(ctx, sel, target)
		if outcome.Err != nil {
			r.logger.Error().Err(outcome.Err).Str("domain", sel.Domain).Bool("fatal", outcome.Fatal).Msg("record reconciliation failed")
		} else {
			r.logger.Info().Str("domain", sel.Domain).Str("action", string(outcome.Action)).Str("target", target).Msg("record reconciled")
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, report.Err()
}

func (r *Reconciler) reconcileOne(ctx context.Context, sel Selection, target string) Outcome {
	o := Outcome{Domain: sel.Domain}

	records, err := r.provider.ListRecords(ctx, sel.ZoneID, sel.Domain, TypeA, TypeCNAME)
	if err != nil {
		// Without the current state the create below could duplicate records.
		r.out.Fail("Could not read DNS records for %s", sel.Domain)
		o.Action, o.Err = ActionFailed, err
		return o
	}
	r.logger.Debug().Str("domain", sel.Domain).Int("records", len(records)).Msg("existing records")

	switch {
	case len(records) == 0:
		return r.create(ctx, sel, target, ActionCreated)

	case len(records) == 1 && records[0].Type == TypeA:
		rec := records[0]
		if rec.Content == target {
			r.out.Success("%s → %s (already set)", sel.Domain, target)
			o.Action = ActionUnchanged
			return o
		}
		r.out.Warn("Updating %s from %s to %s", sel.Domain, rec.Content, target)
		if err := r.provider.UpdateRecord(ctx, sel.ZoneID, rec.ID, target); err != nil {
			r.out.Fail("Could not update the record for %s", sel.Domain)
			o.Action, o.Err = ActionFailed, err
			return o
		}
		r.out.Success("%s → %s (updated)", sel.Domain, target)
		o.Action = ActionUpdated
		return o

	case len(records) == 1:
		rec := records[0]
		r.out.Warn("Replacing %s record %s → %s with an A record", rec.Type, sel.Domain, rec.Content)
		if err := r.provider.DeleteRecord(ctx, sel.ZoneID, rec.ID); err != nil {
			r.out.Fail("Could not delete the %s record for %s", rec.Type, sel.Domain)
			o.Action, o.Err = ActionFailed, err
			return o
		}
		return r.create(ctx, sel, target, ActionReplaced)

	default:
		return r.resolveAmbiguous(ctx, sel, target, records)
	}
}

// resolveAmbiguous handles several A/CNAME records at one name. The
// operator must confirm before anything is deleted.
func (r *Reconciler) resolveAmbiguous(ctx context.Context, sel Selection, target string, records []Record) Outcome {
	o := Outcome{Domain: sel.Domain}

	r.out.Warn("%s has %d conflicting records:", sel.Domain, len(records))
	for _, rec := range records {
		r.out.Detail("%-5s %s", rec.Type, rec.Content)
	}

	ok, err := r.prompter.Confirm(fmt.Sprintf("Replace them with a single A record %s → %s?", sel.Domain, target), false)
	if err != nil || !ok {
		if err != nil {
			r.logger.Debug().Err(err).Msg("confirm failed")
		}
		r.out.Info("Skipping %s", sel.Domain)
		o.Action = ActionSkipped
		return o
	}

	keep := -1
	for i, rec := range records {
		if rec.Type == TypeA && rec.Content == target {
			keep = i
			break
		}
	}

	for i, rec := range records {
		if i == keep {
			continue
		}
		if err := r.provider.DeleteRecord(ctx, sel.ZoneID, rec.ID); err != nil {
			r.out.Fail("Could not delete %s record %s", rec.Type, rec.Content)
			o.Action, o.Err = ActionFailed, err
			return o
		}
		r.out.Detail("deleted %s %s", rec.Type, rec.Content)
	}

	if keep >= 0 {
		r.out.Success("%s → %s (kept existing record)", sel.Domain, target)
		o.Action = ActionReplaced
		return o
	}
	return r.create(ctx, sel, target, ActionReplaced)
}

func (r *Reconciler) create(ctx context.Context, sel Selection, target string, action Action) Outcome {
	o := Outcome{Domain: sel.Domain}
	_, err := r.provider.CreateRecord(ctx, sel.ZoneID, Record{
		Type:    TypeA,
		Name:    sel.Domain,
		Content: target,
		TTL:     DefaultTTL,
	})
	if err != nil {
		r.out.Fail("Could not create the A record for %s", sel.Domain)
		o.Action, o.Err, o.Fatal = ActionFailed, err, true
		return o
	}
	r.out.Success("%s → %s (A record created)", sel.Domain, target)
	o.Action = action
	return o
}
