// Package memory provides in-memory CatalogRepo and ApprovalRepo
// implementations for tests.
package memory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/repositories"
)

var (
	_ repositories.CatalogRepo  = (*Catalog)(nil)
	_ repositories.ApprovalRepo = (*Approvals)(nil)
)

// Catalog keeps both datasets in maps keyed by external id
type Catalog struct {
	mu       sync.Mutex
	datasets map[models.Dataset]map[int64]models.CatalogEntry
	nextID   int64

	// Err, when set, is returned by every call
	Err error
	// FailReplaceAfterDelete simulates a failure between delete and insert
	FailReplaceAfterDelete error
}

func NewCatalog() *Catalog {
	return &Catalog{
		datasets: map[models.Dataset]map[int64]models.CatalogEntry{
			models.DatasetMain:  {},
			models.DatasetStage: {},
		},
	}
}

// Seed inserts entries directly, assigning fresh ids
func (c *Catalog) Seed(dataset models.Dataset, entries ...models.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range entries {
		c.put(dataset, entry)
	}
}

// Snapshot returns the dataset ordered by external id
func (c *Catalog) Snapshot(dataset models.Dataset) []models.CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorted(dataset)
}

func (c *Catalog) put(dataset models.Dataset, entry models.CatalogEntry) {
	c.nextID++
	entry.ID = c.nextID
	c.datasets[dataset][entry.ExternalID] = entry
}

func (c *Catalog) sorted(dataset models.Dataset) []models.CatalogEntry {
	entries := make([]models.CatalogEntry, 0, len(c.datasets[dataset]))
	for _, entry := range c.datasets[dataset] {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ExternalID < entries[j].ExternalID })
	return entries
}

func (c *Catalog) check(dataset models.Dataset) error {
	if c.Err != nil {
		return c.Err
	}
	if err := dataset.Validate(); err != nil {
		return repositories.BadRequest(err.Error())
	}
	return nil
}

func (c *Catalog) DeleteAll(_ context.Context, dataset models.Dataset) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return 0, err
	}
	n := int64(len(c.datasets[dataset]))
	c.datasets[dataset] = map[int64]models.CatalogEntry{}
	return n, nil
}

func (c *Catalog) BulkInsert(_ context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if _, ok := c.datasets[dataset][entry.ExternalID]; ok {
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "duplicate external id %d", entry.ExternalID)
		}
		c.put(dataset, entry)
	}
	return len(entries), nil
}

func (c *Catalog) Exists(_ context.Context, dataset models.Dataset, externalID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return false, err
	}
	_, ok := c.datasets[dataset][externalID]
	return ok, nil
}

func (c *Catalog) Get(_ context.Context, dataset models.Dataset, externalID int64) (*models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return nil, err
	}
	entry, ok := c.datasets[dataset][externalID]
	if !ok {
		return nil, repositories.NotFound("satellite %d does not exist in %s", externalID, dataset)
	}
	return &entry, nil
}

func (c *Catalog) List(_ context.Context, dataset models.Dataset) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return nil, err
	}
	return c.sorted(dataset), nil
}

func (c *Catalog) Count(_ context.Context, dataset models.Dataset) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return 0, err
	}
	return len(c.datasets[dataset]), nil
}

func (c *Catalog) Insert(_ context.Context, dataset models.Dataset, entry *models.CatalogEntry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return false, err
	}
	if _, ok := c.datasets[dataset][entry.ExternalID]; ok {
		return false, nil
	}
	c.put(dataset, *entry)
	return true, nil
}

func (c *Catalog) UpdateValidation(_ context.Context, dataset models.Dataset, externalID int64, active bool, validatedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return err
	}
	entry, ok := c.datasets[dataset][externalID]
	if !ok {
		return repositories.NotFound("satellite %d does not exist in %s", externalID, dataset)
	}
	entry.Active = active
	entry.LastValidatedAt = &validatedAt
	c.datasets[dataset][externalID] = entry
	return nil
}

// Replace is atomic: on failure the dataset keeps its previous contents
func (c *Catalog) Replace(_ context.Context, dataset models.Dataset, entries []models.CatalogEntry) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(dataset); err != nil {
		return 0, err
	}
	if c.FailReplaceAfterDelete != nil {
		return 0, c.FailReplaceAfterDelete
	}

	c.datasets[dataset] = map[int64]models.CatalogEntry{}
	for _, entry := range models.StripIDs(entries) {
		c.put(dataset, entry)
	}
	return len(entries), nil
}

// Approvals keeps approval requests keyed by token
type Approvals struct {
	mu       sync.Mutex
	requests map[string]models.ApprovalRequest

	// GetErr, when set, is returned by GetByToken
	GetErr error
}

func NewApprovals() *Approvals {
	return &Approvals{requests: map[string]models.ApprovalRequest{}}
}

// Tokens returns every stored token
func (a *Approvals) Tokens() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	tokens := make([]string, 0, len(a.requests))
	for token := range a.requests {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func (a *Approvals) Create(_ context.Context, request *models.ApprovalRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	a.requests[request.Token] = *request
	return nil
}

func (a *Approvals) GetByToken(_ context.Context, token string) (*models.ApprovalRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.GetErr != nil {
		return nil, a.GetErr
	}
	request, ok := a.requests[token]
	if !ok {
		return nil, repositories.NotFound("approval request does not exist")
	}
	return &request, nil
}

func (a *Approvals) Approve(_ context.Context, token string, at time.Time) (*models.ApprovalRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	request, ok := a.requests[token]
	if !ok {
		return nil, repositories.NotFound("approval request does not exist")
	}
	if request.Approved {
		return &request, nil
	}
	if request.Expired(at) {
		return nil, httperror.NewHTTPError(http.StatusGone, "approval request has expired")
	}
	request.Approved = true
	request.ResolvedAt = &at
	a.requests[token] = request
	return &request, nil
}

func (a *Approvals) GetByID(_ context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.GetErr != nil {
		return nil, a.GetErr
	}
	for _, request := range a.requests {
		if request.ID == id {
			return &request, nil
		}
	}
	return nil, repositories.NotFound("approval request %s does not exist", id)
}

func (a *Approvals) Expire(_ context.Context, token string, at time.Time) (*models.ApprovalRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	request, ok := a.requests[token]
	if !ok {
		return nil, repositories.NotFound("approval request does not exist")
	}
	if request.ResolvedAt == nil {
		request.Approved = false
		request.ResolvedAt = &at
		a.requests[token] = request
	}
	return &request, nil
}

func (a *Approvals) Consume(_ context.Context, token string, at time.Time) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	request, ok := a.requests[token]
	if !ok || !request.Approved || request.Used() || !at.Before(request.ExpiresAt) {
		return false, nil
	}
	request.PromotedAt = &at
	a.requests[token] = request
	return true, nil
}
