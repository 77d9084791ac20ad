package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/service/mocks"
	"github.com/shenikar/alerto360/internal/vision"
	"github.com/shenikar/alerto360/internal/webhook"
	webhook_mocks "github.com/shenikar/alerto360/internal/webhook/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type incidentServiceMocks struct {
	repo       *mocks.MockIncidentRepository
	tx         *mocks.MockTransactor
	notifier   *mocks.MockNotifier
	images     *mocks.MockImageStore
	classifier *mocks.MockImageClassifier
	publisher  *webhook_mocks.MockWebhookPublisher
}

// newTestIncidentService — вспомогательная функция для создания инстанса сервиса с моками.
func newTestIncidentService(t *testing.T) (*incidentService, incidentServiceMocks) {
	ctrl := gomock.NewController(t)
	m := incidentServiceMocks{
		repo:       mocks.NewMockIncidentRepository(ctrl),
		tx:         mocks.NewMockTransactor(ctrl),
		notifier:   mocks.NewMockNotifier(ctrl),
		images:     mocks.NewMockImageStore(ctrl),
		classifier: mocks.NewMockImageClassifier(ctrl),
		publisher:  webhook_mocks.NewMockWebhookPublisher(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	svc := NewIncidentService(m.repo, m.tx, m.notifier, m.images, m.classifier, m.publisher, logger)
	return svc.(*incidentService), m
}

// expectTransaction заставляет мок транзакции просто вызвать fn
func expectTransaction(m incidentServiceMocks) {
	m.tx.EXPECT().
		WithinTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).Times(1)
}

var (
	citizen   = models.Principal{UserID: 10, Role: models.RoleCitizen}
	responder = models.Principal{UserID: 3, Role: models.RoleResponder, ResponderType: models.ResponderBFP}
	admin     = models.Principal{UserID: 1, Role: models.RoleAdmin}

	pnpResponder = models.Principal{UserID: 4, Role: models.RoleResponder, ResponderType: models.ResponderPNP}
)

func ptr[T any](v T) *T { return &v }

func TestReportIncident_Success(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()

	expectTransaction(m)
	m.repo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident) error {
			assert.Equal(t, models.StatusPending, inc.Status)
			assert.Equal(t, models.ResponderBFP, inc.ResponderType)
			assert.Equal(t, citizen.UserID, inc.UserID)
			assert.False(t, inc.Overridden)
			inc.ID = 42
			return nil
		}).Times(1)
	m.notifier.EXPECT().
		NotifyNewIncident(gomock.Any(), gomock.Any(), (*models.ResponderType)(nil)).
		Return(int64(3), nil).Times(1)
	m.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Do(func(ctx context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventIncidentCreated, event.Type)
			assert.Equal(t, int64(42), event.IncidentID)
		}).Return(nil).Times(1)

	incident, err := service.ReportIncident(ctx, citizen, models.NewIncident{
		Type:        models.IncidentFire,
		Description: "Smoke from the market",
		Latitude:    ptr(14.5995),
		Longitude:   ptr(120.9842),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), incident.ID)
	assert.Equal(t, models.ResponderBFP, incident.ResponderType)
}

func TestReportIncident_OverrideReplacesRouting(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	override := models.ResponderPNP

	expectTransaction(m)
	m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	m.notifier.EXPECT().
		NotifyNewIncident(gomock.Any(), gomock.Any(), &override).
		Return(int64(1), nil).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	incident, err := service.ReportIncident(ctx, citizen, models.NewIncident{
		Type:              models.IncidentFlood,
		Description:       "Water rising",
		ResponderOverride: "pnp",
	})

	require.NoError(t, err)
	assert.Equal(t, models.ResponderPNP, incident.ResponderType)
	assert.True(t, incident.Overridden)
}

func TestReportIncident_ImageFillsDescription(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	image := []byte("fake-jpeg")

	m.classifier.EXPECT().Classify(gomock.Any()).Return(vision.Result{
		IncidentType:  models.IncidentFire,
		ResponderType: models.ResponderBFP,
		Confidence:    95,
		Description:   "Fire detected",
	}).Times(1)
	m.images.EXPECT().Save(gomock.Any(), image, "image/jpeg", ".jpg").Return("uploads/abc.jpg", nil).Times(1)
	expectTransaction(m)
	m.repo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, inc *models.Incident) error {
			assert.Equal(t, "Fire detected", inc.Description)
			require.NotNil(t, inc.ImagePath)
			assert.Equal(t, "uploads/abc.jpg", *inc.ImagePath)
			return nil
		}).Times(1)
	m.notifier.EXPECT().NotifyNewIncident(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := service.ReportIncident(ctx, citizen, models.NewIncident{
		Type:             models.IncidentFire,
		Image:            image,
		ImageContentType: "image/jpeg",
		ImageExt:         ".jpg",
	})

	require.NoError(t, err)
}

func TestReportIncident_RollbackDeletesImage(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	dbError := fmt.Errorf("connection reset")

	m.images.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("uploads/x.png", nil).Times(1)
	expectTransaction(m)
	m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	m.notifier.EXPECT().NotifyNewIncident(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), dbError).Times(1)
	m.images.EXPECT().Delete(gomock.Any(), "uploads/x.png").Return(nil).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	incident, err := service.ReportIncident(ctx, citizen, models.NewIncident{
		Type:        models.IncidentCrime,
		Description: "Break-in",
		Image:       []byte("png"),
	})

	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, dbError)
}

func TestReportIncident_Validation(t *testing.T) {
	testCases := []struct {
		name string
		in   models.NewIncident
	}{
		{"unknown type", models.NewIncident{Type: "Meteor", Description: "x"}},
		{"no description and no image", models.NewIncident{Type: models.IncidentFire, Description: "  "}},
		{"latitude without longitude", models.NewIncident{Type: models.IncidentFire, Description: "x", Latitude: ptr(1.0)}},
		{"latitude out of range", models.NewIncident{Type: models.IncidentFire, Description: "x", Latitude: ptr(91.0), Longitude: ptr(0.0)}},
		{"longitude out of range", models.NewIncident{Type: models.IncidentFire, Description: "x", Latitude: ptr(0.0), Longitude: ptr(-181.0)}},
		{"unknown override", models.NewIncident{Type: models.IncidentFire, Description: "x", ResponderOverride: "army"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, _ := newTestIncidentService(t)

			incident, err := service.ReportIncident(context.Background(), citizen, tc.in)

			require.Error(t, err)
			assert.Nil(t, incident)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestReportIncident_OnlyCitizens(t *testing.T) {
	service, _ := newTestIncidentService(t)

	_, err := service.ReportIncident(context.Background(), responder, models.NewIncident{
		Type: models.IncidentFire, Description: "x",
	})

	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	expected := &models.Incident{ID: 5, UserID: citizen.UserID, Status: models.StatusPending}

	m.repo.EXPECT().GetIncidentFromCache(ctx, int64(5)).Return(expected, int64(0), nil).Times(1)

	incident, err := service.GetIncident(ctx, citizen, 5)

	require.NoError(t, err)
	assert.Equal(t, expected, incident)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	expected := &models.Incident{ID: 5, ResponderType: models.ResponderBFP}

	// 1. Промах кеша
	m.repo.EXPECT().GetIncidentFromCache(ctx, int64(5)).Return(nil, int64(2), nil).Times(1)
	// 2. Попадание в БД
	m.repo.EXPECT().GetByID(ctx, int64(5)).Return(expected, nil).Times(1)
	// 3. Запись в кеш с прочитанным поколением
	m.repo.EXPECT().SetIncidentCache(ctx, expected, int64(2)).Return(true, nil).Times(1)

	incident, err := service.GetIncident(ctx, responder, 5)

	require.NoError(t, err)
	assert.Equal(t, expected, incident)
}

func TestGetIncident_CacheErrorFallsBackToDB(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	expected := &models.Incident{ID: 5}

	m.repo.EXPECT().GetIncidentFromCache(ctx, int64(5)).Return(nil, int64(0), errors.New("redis down")).Times(1)
	m.repo.EXPECT().GetByID(ctx, int64(5)).Return(expected, nil).Times(1)
	// поколение неизвестно, в кэш не пишем
	m.repo.EXPECT().SetIncidentCache(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	incident, err := service.GetIncident(ctx, admin, 5)

	require.NoError(t, err)
	assert.Equal(t, expected, incident)
}

func TestGetIncident_NotFound(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()

	m.repo.EXPECT().GetIncidentFromCache(ctx, int64(9)).Return(nil, int64(0), nil).Times(1)
	m.repo.EXPECT().GetByID(ctx, int64(9)).Return(nil, models.ErrIncidentNotFound).Times(1)

	incident, err := service.GetIncident(ctx, admin, 9)

	require.Error(t, err)
	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
	assert.ErrorContains(t, err, "could not get incident")
}

func TestGetIncident_Visibility(t *testing.T) {
	other := models.Principal{UserID: 77, Role: models.RoleCitizen}
	pnp := models.Principal{UserID: 4, Role: models.RoleResponder, ResponderType: models.ResponderPNP}
	incident := &models.Incident{ID: 5, UserID: citizen.UserID, ResponderType: models.ResponderBFP}
	acceptedByPNP := &models.Incident{ID: 6, UserID: citizen.UserID, ResponderType: models.ResponderBFP, AcceptedBy: ptr(int64(4))}
	sharedOther := &models.Incident{ID: 7, UserID: citizen.UserID, Type: models.IncidentOther, ResponderType: models.ResponderMDDRMO}
	overriddenOther := &models.Incident{ID: 8, UserID: citizen.UserID, Type: models.IncidentOther, ResponderType: models.ResponderMDDRMO, Overridden: true}

	testCases := []struct {
		name     string
		p        models.Principal
		incident *models.Incident
		allowed  bool
	}{
		{"owner citizen", citizen, incident, true},
		{"other citizen", other, incident, false},
		{"matching responder", responder, incident, true},
		{"other responder type", pnp, incident, false},
		{"responder who accepted", pnp, acceptedByPNP, true},
		{"PNP notified about other incident", pnp, sharedOther, true},
		{"BFP not notified about other incident", responder, sharedOther, false},
		{"citizen chose MDDRMO explicitly", pnp, overriddenOther, false},
		{"admin", admin, incident, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, m := newTestIncidentService(t)
			m.repo.EXPECT().GetIncidentFromCache(gomock.Any(), tc.incident.ID).Return(tc.incident, int64(0), nil).Times(1)

			got, err := service.GetIncident(context.Background(), tc.p, tc.incident.ID)

			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.incident, got)
			} else {
				assert.ErrorIs(t, err, models.ErrForbidden)
				assert.Nil(t, got)
			}
		})
	}
}

func TestListIncidents_ScopedByRole(t *testing.T) {
	testCases := []struct {
		name   string
		p      models.Principal
		expect models.IncidentFilter
	}{
		{"citizen", citizen, models.IncidentFilter{ReporterID: ptr(citizen.UserID), Page: 1, PageSize: 20}},
		{"responder", responder, models.IncidentFilter{
			Queue: &models.ResponderQueue{ResponderType: models.ResponderBFP, AcceptedBy: responder.UserID},
			Page:  1, PageSize: 20,
		}},
		{"PNP responder sees shared types", pnpResponder, models.IncidentFilter{
			Queue: &models.ResponderQueue{
				ResponderType: models.ResponderPNP,
				SharedTypes:   []models.IncidentType{models.IncidentOther},
				AcceptedBy:    pnpResponder.UserID,
			},
			Page: 1, PageSize: 20,
		}},
		{"admin", admin, models.IncidentFilter{Page: 1, PageSize: 20}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, m := newTestIncidentService(t)
			expected := []*models.Incident{{ID: 1}, {ID: 2}}

			m.repo.EXPECT().List(gomock.Any(), tc.expect).Return(expected, nil).Times(1)

			incidents, err := service.ListIncidents(context.Background(), tc.p, "", 0, 500)

			require.NoError(t, err)
			assert.Equal(t, expected, incidents)
		})
	}
}

func TestListIncidents_StatusFilter(t *testing.T) {
	service, m := newTestIncidentService(t)
	status := models.StatusCompleted

	m.repo.EXPECT().
		List(gomock.Any(), models.IncidentFilter{Status: &status, Page: 2, PageSize: 10}).
		Return([]*models.Incident{}, nil).Times(1)

	_, err := service.ListIncidents(context.Background(), admin, "done", 2, 10)

	require.NoError(t, err)
}

func TestListIncidents_UnknownStatus(t *testing.T) {
	service, _ := newTestIncidentService(t)

	_, err := service.ListIncidents(context.Background(), admin, "archived", 1, 10)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAcceptIncident_Success(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()
	accepted := &models.Incident{ID: 5, Status: models.StatusAccepted, AcceptedBy: ptr(responder.UserID)}

	m.repo.EXPECT().Accept(ctx, int64(5), responder.UserID).Return(accepted, true, nil).Times(1)
	m.repo.EXPECT().InvalidateIncidentCache(ctx, int64(5)).Return(nil).Times(1)
	m.publisher.EXPECT().
		Publish(ctx, gomock.Any()).
		Do(func(ctx context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventIncidentAccepted, event.Type)
			assert.Equal(t, responder.UserID, event.ActorID)
		}).Return(nil).Times(1)

	incident, err := service.AcceptIncident(ctx, responder, 5)

	require.NoError(t, err)
	assert.Equal(t, accepted, incident)
}

func TestAcceptIncident_AlreadyProcessed(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()

	m.repo.EXPECT().Accept(ctx, int64(5), responder.UserID).Return(nil, false, nil).Times(1)
	m.repo.EXPECT().GetByID(ctx, int64(5)).Return(&models.Incident{ID: 5, Status: models.StatusAccepted}, nil).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	incident, err := service.AcceptIncident(ctx, responder, 5)

	assert.Nil(t, incident)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
}

func TestAcceptIncident_NotFound(t *testing.T) {
	service, m := newTestIncidentService(t)
	ctx := context.Background()

	m.repo.EXPECT().Accept(ctx, int64(5), responder.UserID).Return(nil, false, nil).Times(1)
	m.repo.EXPECT().GetByID(ctx, int64(5)).Return(nil, models.ErrIncidentNotFound).Times(1)

	_, err := service.AcceptIncident(ctx, responder, 5)

	assert.ErrorIs(t, err, models.ErrIncidentNotFound)
}

func TestAcceptIncident_OnlyResponders(t *testing.T) {
	service, _ := newTestIncidentService(t)

	_, err := service.AcceptIncident(context.Background(), citizen, 5)

	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCompleteIncident_Success(t *testing.T) {
	service, m := newTestIncidentService(t)
	completed := &models.Incident{ID: 5, Status: models.StatusCompleted, AcceptedBy: ptr(responder.UserID)}

	expectTransaction(m)
	m.repo.EXPECT().Close(gomock.Any(), int64(5), responder.UserID, models.StatusCompleted).Return(completed, true, nil).Times(1)
	m.notifier.EXPECT().NotifyIncidentClosed(gomock.Any(), completed, responder).Return(int64(2), nil).Times(1)
	m.repo.EXPECT().InvalidateIncidentCache(gomock.Any(), int64(5)).Return(nil).Times(1)
	m.publisher.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		Do(func(ctx context.Context, event webhook.WebhookEvent) {
			assert.Equal(t, webhook.EventIncidentCompleted, event.Type)
		}).Return(nil).Times(1)

	incident, err := service.CompleteIncident(context.Background(), responder, 5)

	require.NoError(t, err)
	assert.Equal(t, completed, incident)
}

func TestResolveIncident_Success(t *testing.T) {
	service, m := newTestIncidentService(t)
	resolved := &models.Incident{ID: 5, Status: models.StatusResolved}

	expectTransaction(m)
	m.repo.EXPECT().Close(gomock.Any(), int64(5), responder.UserID, models.StatusResolved).Return(resolved, true, nil).Times(1)
	m.notifier.EXPECT().NotifyIncidentClosed(gomock.Any(), resolved, responder).Return(int64(1), nil).Times(1)
	m.repo.EXPECT().InvalidateIncidentCache(gomock.Any(), int64(5)).Return(nil).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := service.ResolveIncident(context.Background(), responder, 5)

	require.NoError(t, err)
}

func TestCompleteIncident_Rejected(t *testing.T) {
	testCases := []struct {
		name     string
		existing *models.Incident
		getErr   error
		want     error
	}{
		{"still pending", &models.Incident{ID: 5, Status: models.StatusPending}, nil, models.ErrInvalidTransition},
		{"already completed", &models.Incident{ID: 5, Status: models.StatusCompleted}, nil, models.ErrInvalidTransition},
		{"accepted by someone else", &models.Incident{ID: 5, Status: models.StatusAccepted, AcceptedBy: ptr(int64(99))}, nil, models.ErrNotOwner},
		{"missing", nil, models.ErrIncidentNotFound, models.ErrIncidentNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			service, m := newTestIncidentService(t)

			expectTransaction(m)
			m.repo.EXPECT().Close(gomock.Any(), int64(5), responder.UserID, models.StatusCompleted).Return(nil, false, nil).Times(1)
			m.repo.EXPECT().GetByID(gomock.Any(), int64(5)).Return(tc.existing, tc.getErr).Times(1)
			m.notifier.EXPECT().NotifyIncidentClosed(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

			incident, err := service.CompleteIncident(context.Background(), responder, 5)

			assert.Nil(t, incident)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompleteIncident_NotifyFailureRollsBack(t *testing.T) {
	service, m := newTestIncidentService(t)
	completed := &models.Incident{ID: 5, Status: models.StatusCompleted}
	notifyErr := errors.New("insert failed")

	expectTransaction(m)
	m.repo.EXPECT().Close(gomock.Any(), int64(5), responder.UserID, models.StatusCompleted).Return(completed, true, nil).Times(1)
	m.notifier.EXPECT().NotifyIncidentClosed(gomock.Any(), completed, responder).Return(int64(0), notifyErr).Times(1)
	m.repo.EXPECT().InvalidateIncidentCache(gomock.Any(), gomock.Any()).Times(0)

	_, err := service.CompleteIncident(context.Background(), responder, 5)

	assert.ErrorIs(t, err, notifyErr)
}

func TestPublishFailureDoesNotFailAccept(t *testing.T) {
	service, m := newTestIncidentService(t)
	accepted := &models.Incident{ID: 5, Status: models.StatusAccepted}

	m.repo.EXPECT().Accept(gomock.Any(), int64(5), responder.UserID).Return(accepted, true, nil).Times(1)
	m.repo.EXPECT().InvalidateIncidentCache(gomock.Any(), int64(5)).Return(errors.New("redis down")).Times(1)
	m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("queue full")).Times(1)

	incident, err := service.AcceptIncident(context.Background(), responder, 5)

	require.NoError(t, err)
	assert.Equal(t, accepted, incident)
}

func TestIncidentStats(t *testing.T) {
	service, m := newTestIncidentService(t)
	expected := []models.StatusCount{{Status: models.StatusPending, Count: 4}}

	m.repo.EXPECT().CountByStatus(gomock.Any()).Return(expected, nil).Times(1)

	counts, err := service.IncidentStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, expected, counts)

	_, err = service.IncidentStats(context.Background(), citizen)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestExportIncidents(t *testing.T) {
	service, m := newTestIncidentService(t)

	m.repo.EXPECT().List(gomock.Any(), models.IncidentFilter{}).Return([]*models.Incident{{ID: 1, Type: models.IncidentFire}}, nil).Times(1)
	m.repo.EXPECT().CountByStatus(gomock.Any()).Return(nil, nil).Times(1)

	data, err := service.ExportIncidents(context.Background(), admin)

	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = service.ExportIncidents(context.Background(), responder)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGetIncidentImage(t *testing.T) {
	withImage := &models.Incident{ID: 5, UserID: citizen.UserID, ResponderType: models.ResponderBFP, ImagePath: ptr("uploads/abc.jpg")}

	t.Run("streams image to allowed viewer", func(t *testing.T) {
		service, m := newTestIncidentService(t)
		ctx := context.Background()

		m.repo.EXPECT().GetIncidentFromCache(ctx, int64(5)).Return(withImage, int64(0), nil).Times(1)
		m.images.EXPECT().Open(ctx, "uploads/abc.jpg").
			Return(io.NopCloser(strings.NewReader("jpeg")), "image/jpeg", nil).Times(1)

		rc, contentType, err := service.GetIncidentImage(ctx, responder, 5)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))
		assert.Equal(t, "image/jpeg", contentType)
	})

	t.Run("hidden from other citizens", func(t *testing.T) {
		service, m := newTestIncidentService(t)
		other := models.Principal{UserID: 77, Role: models.RoleCitizen}

		m.repo.EXPECT().GetIncidentFromCache(gomock.Any(), int64(5)).Return(withImage, int64(0), nil).Times(1)
		m.images.EXPECT().Open(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := service.GetIncidentImage(context.Background(), other, 5)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("incident without image", func(t *testing.T) {
		service, m := newTestIncidentService(t)
		noImage := &models.Incident{ID: 6, UserID: citizen.UserID}

		m.repo.EXPECT().GetIncidentFromCache(gomock.Any(), int64(6)).Return(noImage, int64(0), nil).Times(1)

		_, _, err := service.GetIncidentImage(context.Background(), citizen, 6)
		assert.ErrorIs(t, err, models.ErrImageNotFound)
	})

	t.Run("missing file", func(t *testing.T) {
		service, m := newTestIncidentService(t)

		m.repo.EXPECT().GetIncidentFromCache(gomock.Any(), int64(5)).Return(withImage, int64(0), nil).Times(1)
		m.images.EXPECT().Open(gomock.Any(), "uploads/abc.jpg").
			Return(nil, "", fmt.Errorf("image uploads/abc.jpg: %w", models.ErrImageNotFound)).Times(1)

		_, _, err := service.GetIncidentImage(context.Background(), admin, 5)
		assert.ErrorIs(t, err, models.ErrImageNotFound)
		assert.ErrorContains(t, err, "could not open image")
	})
}
