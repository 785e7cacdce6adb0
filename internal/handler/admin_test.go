package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"postcodejp/internal/fetcher"
	"postcodejp/internal/models"
	"postcodejp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSyncService is a mock implementation of the SyncService interface
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) TriggerSync() string {
	return m.Called().String(0)
}

func (m *MockSyncService) TriggerDiff(yymm string) (string, error) {
	args := m.Called(yymm)
	return args.String(0), args.Error(1)
}

func (m *MockSyncService) Status(ctx context.Context) (*models.SyncStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*models.SyncStatus)
	return status, args.Error(1)
}

func (m *MockSyncService) History(ctx context.Context, limit, offset int) ([]models.SyncRun, error) {
	args := m.Called(ctx, limit, offset)
	runs, _ := args.Get(0).([]models.SyncRun)
	return runs, args.Error(1)
}

const triggerID = "6f1c2b7e-3d4a-4b8e-9c1f-2a3b4c5d6e7f"

func TestAdminHandler_TriggerSync(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockSvc := new(MockSyncService)
	mockSvc.On("TriggerSync").Return(triggerID).Once()
	r := NewRouter(RouterConfig{Admin: NewAdminHandler(mockSvc)})

	w := serve(t, r, http.MethodPost, "/api/admin/sync", nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"message":"sync started in background","trigger_id":"`+triggerID+`"}`, w.Body.String())
	mockSvc.AssertExpectations(t)
}

func TestAdminHandler_TriggerDiff(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		target         string
		setup          func(m *MockSyncService)
		expectedStatus int
	}{
		{
			name:           "missing yymm",
			target:         "/api/admin/sync/diff",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "invalid yymm",
			target: "/api/admin/sync/diff?yymm=2513",
			setup: func(m *MockSyncService) {
				m.On("TriggerDiff", "2513").Return("", fetcher.ErrInvalidYearMonth)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "accepted",
			target: "/api/admin/sync/diff?yymm=2501",
			setup: func(m *MockSyncService) {
				m.On("TriggerDiff", "2501").Return(triggerID, nil)
			},
			expectedStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockSyncService)
			if tt.setup != nil {
				tt.setup(mockSvc)
			}
			r := NewRouter(RouterConfig{Admin: NewAdminHandler(mockSvc)})

			w := serve(t, r, http.MethodPost, tt.target, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestAdminHandler_Status(t *testing.T) {
	gin.SetMode(gin.TestMode)

	completed := time.Date(2025, 2, 1, 3, 5, 0, 0, time.UTC)
	status := &models.SyncStatus{
		IsSyncing: false,
		LastSync: &models.SyncRun{
			ID:           12,
			Kind:         models.SyncKindFull,
			Dataset:      models.DatasetAddresses,
			RecordsAdded: 124000,
			Status:       models.SyncStatusCompleted,
			StartedAt:    completed.Add(-5 * time.Minute),
			CompletedAt:  &completed,
		},
		PostalCodesCount: 124000,
		OfficeCodesCount: 22000,
		CheckedAt:        completed,
	}
	mockSvc := new(MockSyncService)
	mockSvc.On("Status", mock.Anything).Return(status, nil)
	r := NewRouter(RouterConfig{Admin: NewAdminHandler(mockSvc)})

	w := serve(t, r, http.MethodGet, "/api/admin/sync/status", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["is_syncing"])
	assert.Equal(t, float64(124000), body["postal_codes_count"])
	last := body["last_sync"].(map[string]any)
	assert.Equal(t, "full", last["sync_type"])
	assert.Equal(t, "postal_codes", last["data_type"])
	assert.Equal(t, "completed", last["status"])
}

func TestAdminHandler_History(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		query          string
		limit, offset  int
		mockRuns       []models.SyncRun
		mockError      error
		expectedStatus int
	}{
		{name: "defaults", query: "", limit: 20, offset: 0, mockRuns: []models.SyncRun{{ID: 2}, {ID: 1}}, expectedStatus: http.StatusOK},
		{name: "explicit page", query: "?limit=5&offset=5", limit: 5, offset: 5, mockRuns: []models.SyncRun{}, expectedStatus: http.StatusOK},
		{name: "limit out of range", query: "?limit=500", limit: 500, mockError: fmt.Errorf("%w: limit", service.ErrInvalidArgument), expectedStatus: http.StatusBadRequest},
		{name: "non-numeric offset", query: "?offset=x", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockSyncService)
			mockSvc.On("History", mock.Anything, tt.limit, tt.offset).Return(tt.mockRuns, tt.mockError).Maybe()
			r := NewRouter(RouterConfig{Admin: NewAdminHandler(mockSvc)})

			w := serve(t, r, http.MethodGet, "/api/admin/sync/history"+tt.query, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				var runs []models.SyncRun
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
				assert.Len(t, runs, len(tt.mockRuns))
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		key            string
		header         string
		expectedStatus int
	}{
		{name: "no key configured", key: "", header: "", expectedStatus: http.StatusAccepted},
		{name: "matching key", key: "secret", header: "secret", expectedStatus: http.StatusAccepted},
		{name: "missing header", key: "secret", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "secret", header: "guess", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockSyncService)
			mockSvc.On("TriggerSync").Return(triggerID).Maybe()
			r := NewRouter(RouterConfig{Admin: NewAdminHandler(mockSvc), AdminAPIKey: tt.key})

			header := http.Header{}
			if tt.header != "" {
				header.Set("X-API-Key", tt.header)
			}
			w := serve(t, r, http.MethodPost, "/api/admin/sync", header)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusUnauthorized {
				mockSvc.AssertNotCalled(t, "TriggerSync")
			}
		})
	}
}
