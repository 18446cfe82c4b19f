package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scantrack/attendance-api/internal/middleware"
	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/internal/service"
	"github.com/scantrack/attendance-api/pkg/clock"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
	"github.com/scantrack/attendance-api/pkg/qrtoken"
)

type attendanceServiceMock struct {
	scanResult *service.ScanResult
	scanErr    error
	lastScan   service.ScanRequest
	record     *models.AttendanceRecord
	summary    *models.SessionSummary
}

func (m *attendanceServiceMock) MarkScan(ctx context.Context, req service.ScanRequest, claims *models.JWTClaims) (*service.ScanResult, error) {
	m.lastScan = req
	return m.scanResult, m.scanErr
}

func (m *attendanceServiceMock) MarkExcused(ctx context.Context, recordID string, req service.ExcuseRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	return m.record, nil
}

func (m *attendanceServiceMock) Override(ctx context.Context, req service.OverrideRequest, claims *models.JWTClaims) (*models.AttendanceRecord, error) {
	return m.record, nil
}

func (m *attendanceServiceMock) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error) {
	return nil, nil
}

func (m *attendanceServiceMock) SessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, bool, error) {
	return m.summary, false, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func scanFixture(now time.Time) (*AttendanceHandler, *attendanceServiceMock, *qrtoken.Signer) {
	mockSvc := &attendanceServiceMock{
		scanResult: &service.ScanResult{Status: models.AttendanceStatusPresent},
	}
	signer := qrtoken.NewSigner("secret", 5*time.Minute)
	handler := NewAttendanceHandler(mockSvc, signer, clock.Fixed{Instant: now})
	return handler, mockSvc, signer
}

func TestAttendanceHandlerScanByAdmissionNumber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 10, 8, 5, 0, 0, time.UTC)
	handler, mockSvc, _ := scanFixture(now)

	payload, _ := json.Marshal(map[string]string{"admission_number": "ADM-001"})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Scan(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ADM-001", mockSvc.lastScan.AdmissionNumber)
}

func TestAttendanceHandlerScanByBadgeToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, 3, 10, 8, 5, 0, 0, time.UTC)
	handler, mockSvc, signer := scanFixture(now)

	token, _, err := signer.Generate("ADM-007", now)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"qr_token": token})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Scan(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ADM-007", mockSvc.lastScan.AdmissionNumber)
}

func TestAttendanceHandlerScanRejectsExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issued := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	handler, _, signer := scanFixture(issued.Add(10 * time.Minute))

	token, _, err := signer.Generate("ADM-007", issued)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"qr_token": token})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Scan(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerScanRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := scanFixture(time.Now())

	payload, _ := json.Marshal(map[string]string{})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Scan(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerScanPropagatesConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, mockSvc, _ := scanFixture(time.Now())
	mockSvc.scanErr = appErrors.Clone(appErrors.ErrAlreadyMarked, "")

	payload, _ := json.Marshal(map[string]string{"admission_number": "ADM-001"})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Scan(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAttendanceHandlerScanUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := scanFixture(time.Now())

	payload, _ := json.Marshal(map[string]string{"admission_number": "ADM-001"})
	c, w := newGinContext(http.MethodPost, "/attendance/scan", payload)

	handler.Scan(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
