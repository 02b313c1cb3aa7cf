// Package ingest implements the lead ingestion job: it walks every
// connected account's pages, their lead forms, and each form's leads, and
// persists every lead not already stored.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adstack/leadsync/internal/extract"
	"github.com/adstack/leadsync/internal/metrics"
	"github.com/adstack/leadsync/internal/model"
	"github.com/adstack/leadsync/internal/store"
	"github.com/adstack/leadsync/pkg/graph"
)

// Options tunes ingestion behavior.
type Options struct {
	// FreshFormMetadata refetches form name/questions for every unseen
	// lead instead of caching metadata per run.
	FreshFormMetadata bool
}

// Job ingests leads from the Graph API into the store. Safe to run
// repeatedly: already-stored leads are skipped.
type Job struct {
	store store.Store
	graph graph.Client
	opts  Options
	log   *zap.Logger
}

// NewJob creates a lead ingestion job.
func NewJob(st store.Store, gc graph.Client, opts Options) *Job {
	return &Job{
		store: st,
		graph: gc,
		opts:  opts,
		log:   zap.L().With(zap.String("job", "ingest")),
	}
}

// Run performs one ingestion pass over all accounts. Failures below the
// account listing are absorbed at the smallest loop scope that can
// continue: per page for form listing, per form for lead listing, per lead
// for enrichment and persistence. Only a failure to list accounts aborts
// the run.
func (j *Job) Run(ctx context.Context) error {
	accounts, err := j.store.ListAccounts(ctx)
	if err != nil {
		return eris.Wrap(err, "ingest: list accounts")
	}

	j.log.Info("starting lead ingestion", zap.Int("accounts", len(accounts)))

	for _, account := range accounts {
		for _, page := range account.Pages {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := j.syncPage(ctx, page); err != nil {
				metrics.RecordIngestError("page")
				j.log.Error("failed to fetch forms for page",
					zap.String("account", account.Name),
					zap.String("page_id", page.PageID),
					zap.Error(err),
				)
			}
		}
	}

	j.log.Info("lead ingestion complete")
	return nil
}

// syncPage lists the page's lead forms and ingests each form's leads. A
// failure listing leads for one form does not stop the remaining forms.
func (j *Job) syncPage(ctx context.Context, page model.Page) error {
	forms, err := j.graph.ListForms(ctx, page.PageID, page.AccessToken)
	if err != nil {
		return err
	}

	// Form metadata cache for this pass, keyed by form id.
	var formCache map[string]*graph.FormDetail
	if !j.opts.FreshFormMetadata {
		formCache = make(map[string]*graph.FormDetail)
	}

	for _, form := range forms {
		if err := j.syncForm(ctx, page, form.ID, formCache); err != nil {
			metrics.RecordIngestError("form")
			j.log.Error("failed to fetch leads for form",
				zap.String("page_id", page.PageID),
				zap.String("form_id", form.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// syncForm lists the form's leads and persists the unseen ones in upstream
// order. A failure enriching or persisting one lead does not stop the
// remaining leads of the form.
func (j *Job) syncForm(ctx context.Context, page model.Page, formID string, formCache map[string]*graph.FormDetail) error {
	leads, err := j.graph.ListLeads(ctx, formID, page.AccessToken)
	if err != nil {
		return err
	}

	for _, lead := range leads {
		stored, err := j.ingestLead(ctx, page, lead, formCache)
		if err != nil {
			metrics.RecordIngestError("lead")
			j.log.Error("failed to ingest lead",
				zap.String("page_id", page.PageID),
				zap.String("form_id", formID),
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
			continue
		}
		if stored {
			metrics.RecordLeadIngested()
			j.log.Info("lead ingested",
				zap.String("page_id", page.PageID),
				zap.String("form_id", lead.FormID),
				zap.String("lead_id", lead.ID),
			)
		}
	}
	return nil
}

// ingestLead stores one lead unless it is already present. It reports
// whether a new row was written.
func (j *Job) ingestLead(ctx context.Context, page model.Page, lead graph.Lead, formCache map[string]*graph.FormDetail) (bool, error) {
	exists, err := j.store.LeadExists(ctx, lead.ID)
	if err != nil {
		return false, err
	}
	if exists {
		metrics.RecordLeadDuplicate()
		return false, nil
	}

	form, err := j.formDetail(ctx, lead.FormID, page.AccessToken, formCache)
	if err != nil {
		return false, err
	}

	fields := extract.Fields(lead, form.Questions)

	questions, err := json.Marshal(form.Questions)
	if err != nil {
		return false, eris.Wrap(err, "ingest: marshal questions")
	}
	raw, err := json.Marshal(lead)
	if err != nil {
		return false, eris.Wrap(err, "ingest: marshal lead")
	}

	record := &model.Lead{
		PageID: page.PageID,
		LeadID: lead.ID,
		FormID: lead.FormID,
		Payload: model.LeadPayload{
			FormName:    form.Name,
			FormID:      fields.FormID,
			PhoneNumber: fields.PhoneNumber,
			Email:       fields.Email,
			Name:        fields.Name,
			Questions:   questions,
			Data:        raw,
		},
	}
	if t, ok := graph.ParseTime(lead.CreatedTime); ok {
		record.CreatedTime = t
	}

	// The insert is an atomic insert-if-absent, so a concurrent run that
	// stored the same lead between the existence check and here surfaces
	// as a duplicate, not an error.
	stored, err := j.store.InsertLead(ctx, record)
	if err != nil {
		return false, err
	}
	if !stored {
		metrics.RecordLeadDuplicate()
	}
	return stored, nil
}

func (j *Job) formDetail(ctx context.Context, formID, pageToken string, cache map[string]*graph.FormDetail) (*graph.FormDetail, error) {
	if cache != nil {
		if form, ok := cache[formID]; ok {
			return form, nil
		}
	}
	form, err := j.graph.GetForm(ctx, formID, pageToken)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache[formID] = form
	}
	return form, nil
}
