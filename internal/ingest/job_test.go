package ingest

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstack/leadsync/internal/model"
	"github.com/adstack/leadsync/pkg/graph"
)

// fakeStore is an in-memory store.Store with per-key error injection.
type fakeStore struct {
	accounts  []model.Account
	listErr   error
	leads     map[string]*model.Lead
	existsErr map[string]error
}

func newFakeStore(accounts ...model.Account) *fakeStore {
	return &fakeStore{
		accounts:  accounts,
		leads:     make(map[string]*model.Lead),
		existsErr: make(map[string]error),
	}
}

func (s *fakeStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.accounts, s.listErr
}

func (s *fakeStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	for i := range s.accounts {
		if s.accounts[i].UserID == userID {
			return &s.accounts[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveAccount(ctx context.Context, account *model.Account) error {
	return nil
}

func (s *fakeStore) LeadExists(ctx context.Context, leadID string) (bool, error) {
	if err := s.existsErr[leadID]; err != nil {
		return false, err
	}
	_, ok := s.leads[leadID]
	return ok, nil
}

func (s *fakeStore) InsertLead(ctx context.Context, lead *model.Lead) (bool, error) {
	if _, ok := s.leads[lead.LeadID]; ok {
		return false, nil
	}
	s.leads[lead.LeadID] = lead
	return true, nil
}

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                      { return nil }

// fakeGraph serves canned forms, leads, and form metadata.
type fakeGraph struct {
	forms        map[string][]graph.Form
	leads        map[string][]graph.Lead
	formDetails  map[string]*graph.FormDetail
	formsErr     map[string]error
	leadsErr     map[string]error
	getFormCalls int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		forms:       make(map[string][]graph.Form),
		leads:       make(map[string][]graph.Lead),
		formDetails: make(map[string]*graph.FormDetail),
		formsErr:    make(map[string]error),
		leadsErr:    make(map[string]error),
	}
}

func (g *fakeGraph) ListForms(ctx context.Context, pageID, token string) ([]graph.Form, error) {
	if err := g.formsErr[pageID]; err != nil {
		return nil, err
	}
	return g.forms[pageID], nil
}

func (g *fakeGraph) ListLeads(ctx context.Context, formID, token string) ([]graph.Lead, error) {
	if err := g.leadsErr[formID]; err != nil {
		return nil, err
	}
	return g.leads[formID], nil
}

func (g *fakeGraph) GetForm(ctx context.Context, formID, token string) (*graph.FormDetail, error) {
	g.getFormCalls++
	form, ok := g.formDetails[formID]
	if !ok {
		return nil, eris.Errorf("no such form %s", formID)
	}
	return form, nil
}

func (g *fakeGraph) ExchangeToken(ctx context.Context, userToken string) (*graph.Token, error) {
	return nil, eris.New("not implemented")
}

func (g *fakeGraph) ListPages(ctx context.Context, userToken string) ([]graph.PageAccount, error) {
	return nil, eris.New("not implemented")
}

func (g *fakeGraph) SubscribeLeadsWebhook(ctx context.Context, pageID, pageToken string) error {
	return eris.New("not implemented")
}

func accountWithPages(userID string, pageIDs ...string) model.Account {
	account := model.Account{UserID: userID, Name: userID, AccessToken: "tok"}
	for _, id := range pageIDs {
		account.Pages = append(account.Pages, model.Page{PageID: id, AccessToken: id + "-token"})
	}
	return account
}

func TestRun_IngestsNewLeadOnceAcrossRuns(t *testing.T) {
	t.Parallel()

	st := newFakeStore(accountWithPages("U1", "P1"))
	gc := newFakeGraph()
	gc.forms["P1"] = []graph.Form{{ID: "F1"}}
	gc.leads["F1"] = []graph.Lead{{
		ID:          "L1",
		FormID:      "F1",
		CreatedTime: "2024-01-01T00:00:00Z",
		FieldData:   []graph.FieldData{{Name: "email", Values: []string{"x@y.com"}}},
	}}
	gc.formDetails["F1"] = &graph.FormDetail{
		Name:      "Contact Us",
		Questions: []graph.Question{{Key: "email"}},
	}

	job := NewJob(st, gc, Options{})
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, st.leads, 1)
	lead := st.leads["L1"]
	require.NotNil(t, lead)
	assert.Equal(t, "P1", lead.PageID)
	assert.Equal(t, "F1", lead.FormID)
	assert.Equal(t, "x@y.com", lead.Payload.Email)
	assert.Equal(t, "Contact Us", lead.Payload.FormName)
	assert.Equal(t, 2024, lead.CreatedTime.Year())

	// Identical upstream data on the next run: no additional lead.
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, st.leads, 1)
}

func TestRun_DuplicateSkipsMetadataFetch(t *testing.T) {
	t.Parallel()

	st := newFakeStore(accountWithPages("U1", "P1"))
	st.leads["L1"] = &model.Lead{LeadID: "L1"}
	gc := newFakeGraph()
	gc.forms["P1"] = []graph.Form{{ID: "F1"}}
	gc.leads["F1"] = []graph.Lead{{ID: "L1", FormID: "F1"}}

	require.NoError(t, NewJob(st, gc, Options{}).Run(context.Background()))

	assert.Zero(t, gc.getFormCalls)
	assert.Len(t, st.leads, 1)
}

func TestRun_PageFailureIsolated(t *testing.T) {
	t.Parallel()

	st := newFakeStore(accountWithPages("U1", "P1", "P2", "P3"))
	gc := newFakeGraph()
	for _, p := range []string{"P1", "P3"} {
		formID := "F-" + p
		gc.forms[p] = []graph.Form{{ID: formID}}
		gc.leads[formID] = []graph.Lead{{ID: "L-" + p, FormID: formID}}
		gc.formDetails[formID] = &graph.FormDetail{Name: p}
	}
	gc.formsErr["P2"] = eris.New("upstream unavailable")

	require.NoError(t, NewJob(st, gc, Options{}).Run(context.Background()))

	assert.Len(t, st.leads, 2)
	assert.Contains(t, st.leads, "L-P1")
	assert.Contains(t, st.leads, "L-P3")
}

func TestRun_FormFailureIsolated(t *testing.T) {
	t.Parallel()

	st := newFakeStore(accountWithPages("U1", "P1"))
	gc := newFakeGraph()
	gc.forms["P1"] = []graph.Form{{ID: "F1"}, {ID: "F2"}, {ID: "F3"}}
	for _, f := range []string{"F1", "F3"} {
		gc.leads[f] = []graph.Lead{{ID: "L-" + f, FormID: f}}
		gc.formDetails[f] = &graph.FormDetail{Name: f}
	}
	gc.leadsErr["F2"] = eris.New("upstream unavailable")

	require.NoError(t, NewJob(st, gc, Options{}).Run(context.Background()))

	assert.Len(t, st.leads, 2)
	assert.Contains(t, st.leads, "L-F1")
	assert.Contains(t, st.leads, "L-F3")
}

func TestRun_LeadFailureIsolated(t *testing.T) {
	t.Parallel()

	st := newFakeStore(accountWithPages("U1", "P1"))
	st.existsErr["L1"] = eris.New("store hiccup")
	gc := newFakeGraph()
	gc.forms["P1"] = []graph.Form{{ID: "F1"}}
	gc.leads["F1"] = []graph.Lead{
		{ID: "L1", FormID: "F1"},
		{ID: "L2", FormID: "F1"},
	}
	gc.formDetails["F1"] = &graph.FormDetail{Name: "Contact Us"}

	require.NoError(t, NewJob(st, gc, Options{}).Run(context.Background()))

	assert.NotContains(t, st.leads, "L1")
	assert.Contains(t, st.leads, "L2")
}

func TestRun_FormMetadataCachedPerRun(t *testing.T) {
	t.Parallel()

	newFixtures := func() (*fakeStore, *fakeGraph) {
		st := newFakeStore(accountWithPages("U1", "P1"))
		gc := newFakeGraph()
		gc.forms["P1"] = []graph.Form{{ID: "F1"}}
		gc.leads["F1"] = []graph.Lead{
			{ID: "L1", FormID: "F1"},
			{ID: "L2", FormID: "F1"},
		}
		gc.formDetails["F1"] = &graph.FormDetail{Name: "Contact Us"}
		return st, gc
	}

	st, gc := newFixtures()
	require.NoError(t, NewJob(st, gc, Options{}).Run(context.Background()))
	assert.Equal(t, 1, gc.getFormCalls)
	assert.Len(t, st.leads, 2)

	st, gc = newFixtures()
	require.NoError(t, NewJob(st, gc, Options{FreshFormMetadata: true}).Run(context.Background()))
	assert.Equal(t, 2, gc.getFormCalls)
	assert.Len(t, st.leads, 2)
}

func TestRun_AccountListingFailureAborts(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.listErr = eris.New("store down")

	err := NewJob(st, newFakeGraph(), Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list accounts")
}
