package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shenikar/alerto360/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestIncidentsXLSX(t *testing.T) {
	lat, lon := 14.5995, 120.9842
	responder := int64(3)
	accepted := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	incidents := []*models.Incident{
		{
			ID: 7, UserID: 10, Type: models.IncidentFire, Description: "Smoke near market",
			Latitude: &lat, Longitude: &lon, ResponderType: models.ResponderBFP,
			Status: models.StatusAccepted, AcceptedBy: &responder, AcceptedAt: &accepted,
			CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: 8, UserID: 11, Type: models.IncidentOther, Description: "Stray dog",
			ResponderType: models.ResponderMDDRMO, Status: models.StatusPending,
			CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
	}
	counts := []models.StatusCount{
		{Status: models.StatusAccepted, Count: 1},
		{Status: models.StatusPending, Count: 1},
	}

	data, err := IncidentsXLSX(incidents, counts)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{IncidentsSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(IncidentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, incidentHeaders, rows[0])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "Fire", rows[1][2])
	assert.Equal(t, "accepted", rows[1][7])
	assert.Equal(t, "2026-03-01 10:05:00", rows[1][9])
	assert.Equal(t, "pending", rows[2][7])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 6)
	assert.Equal(t, []string{"pending", "1"}, summary[1])
	assert.Equal(t, []string{"resolved", "0"}, summary[4])
	assert.Equal(t, []string{"total", "2"}, summary[5])
}

func TestIncidentsXLSX_Empty(t *testing.T) {
	data, err := IncidentsXLSX(nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(IncidentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
