package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shenikar/alerto360/internal/models"
	webhook_mocks "github.com/shenikar/alerto360/internal/webhook/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// memIncidentRepo держит строки и кэш в памяти и повторяет условные UPDATE и поколения кэша
type memIncidentRepo struct {
	mu        sync.Mutex
	rows      map[int64]models.Incident
	cache     map[int64]models.Incident
	gen       map[int64]int64
	afterRead func()
}

func newMemIncidentRepo(incidents ...*models.Incident) *memIncidentRepo {
	r := &memIncidentRepo{
		rows:  make(map[int64]models.Incident),
		cache: make(map[int64]models.Incident),
		gen:   make(map[int64]int64),
	}
	for _, inc := range incidents {
		r.rows[inc.ID] = *inc
	}
	return r
}

func (r *memIncidentRepo) Create(_ context.Context, incident *models.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	incident.ID = int64(len(r.rows) + 1)
	r.rows[incident.ID] = *incident
	return nil
}

func (r *memIncidentRepo) GetByID(_ context.Context, id int64) (*models.Incident, error) {
	r.mu.Lock()
	row, ok := r.rows[id]
	hook := r.afterRead
	r.afterRead = nil
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("incident with id %d: %w", id, models.ErrIncidentNotFound)
	}
	if hook != nil {
		hook()
	}
	return &row, nil
}

func (r *memIncidentRepo) Accept(_ context.Context, id, responderID int64) (*models.Incident, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != models.StatusPending {
		return nil, false, nil
	}
	row.Status = models.StatusAccepted
	row.AcceptedBy = &responderID
	r.rows[id] = row
	return &row, true, nil
}

func (r *memIncidentRepo) Close(_ context.Context, id, responderID int64, to models.IncidentStatus) (*models.Incident, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != models.StatusAccepted || row.AcceptedBy == nil || *row.AcceptedBy != responderID {
		return nil, false, nil
	}
	row.Status = to
	r.rows[id] = row
	return &row, true, nil
}

func (r *memIncidentRepo) List(context.Context, models.IncidentFilter) ([]*models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Incident, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, &row)
	}
	return out, nil
}

func (r *memIncidentRepo) CountByStatus(context.Context) ([]models.StatusCount, error) {
	return nil, nil
}

func (r *memIncidentRepo) GetIncidentFromCache(_ context.Context, id int64) (*models.Incident, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[id]; ok {
		return &cached, r.gen[id], nil
	}
	return nil, r.gen[id], nil
}

func (r *memIncidentRepo) SetIncidentCache(_ context.Context, incident *models.Incident, version int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen[incident.ID] != version {
		return false, nil
	}
	r.cache[incident.ID] = *incident
	return true, nil
}

func (r *memIncidentRepo) InvalidateIncidentCache(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen[id]++
	delete(r.cache, id)
	return nil
}

func (r *memIncidentRepo) cached(id int64) (models.Incident, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.cache[id]
	return inc, ok
}

func newMemIncidentService(t *testing.T, repo *memIncidentRepo) IncidentService {
	ctrl := gomock.NewController(t)
	publisher := webhook_mocks.NewMockWebhookPublisher(ctrl)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewIncidentService(repo, nil, nil, nil, nil, publisher, logger)
}

func TestGetIncident_AcceptDuringReadLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newMemIncidentRepo(&models.Incident{
		ID: 5, UserID: citizen.UserID, Type: models.IncidentFire,
		ResponderType: models.ResponderBFP, Status: models.StatusPending,
	})
	svc := newMemIncidentService(t, repo)

	// происшествие принимают между чтением из БД и записью в кэш
	repo.afterRead = func() {
		_, err := svc.AcceptIncident(ctx, responder, 5)
		require.NoError(t, err)
	}

	stale, err := svc.GetIncident(ctx, citizen, 5)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stale.Status)

	_, ok := repo.cached(5)
	assert.False(t, ok, "stale pending state must not be cached")

	fresh, err := svc.GetIncident(ctx, citizen, 5)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, fresh.Status)

	cached, ok := repo.cached(5)
	require.True(t, ok)
	assert.Equal(t, models.StatusAccepted, cached.Status)
}

func TestAcceptIncident_ConcurrentRespondersSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newMemIncidentRepo(&models.Incident{
		ID: 5, UserID: citizen.UserID, Type: models.IncidentFire,
		ResponderType: models.ResponderBFP, Status: models.StatusPending,
	})
	svc := newMemIncidentService(t, repo)

	responders := []models.Principal{
		{UserID: 3, Role: models.RoleResponder, ResponderType: models.ResponderBFP},
		{UserID: 8, Role: models.RoleResponder, ResponderType: models.ResponderBFP},
	}

	start := make(chan struct{})
	errs := make([]error, len(responders))
	var wg sync.WaitGroup
	for i, p := range responders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.AcceptIncident(ctx, p, 5)
		}()
	}
	close(start)
	wg.Wait()

	var winner int64
	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			winner = responders[i].UserID
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	}
	require.Equal(t, 1, wins)

	incident, err := repo.GetByID(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, incident.Status)
	require.NotNil(t, incident.AcceptedBy)
	assert.Equal(t, winner, *incident.AcceptedBy)
}
