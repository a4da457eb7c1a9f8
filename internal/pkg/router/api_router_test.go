package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mail"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/oauth"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/reminder"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/router"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/testutil"
)

type fixedTokens struct{}

func (fixedTokens) GetValidAccessToken(context.Context, uint) (string, error) {
	return "access-token", nil
}

type memoryConnect struct {
	issued []oauth.ConnectRequest
}

func (m *memoryConnect) Issue(_ context.Context, req oauth.ConnectRequest) (string, error) {
	m.issued = append(m.issued, req)
	return fmt.Sprintf("state-%d", len(m.issued)), nil
}

func (m *memoryConnect) Consume(context.Context, string) (oauth.ConnectRequest, error) {
	return oauth.ConnectRequest{}, nil
}

type server struct {
	app      *fiber.App
	repos    *repository.Repositories
	org      *models.Organization
	invoice  *models.Invoice
	connect  *memoryConnect
	adminKey string
	techKey  string
	otherKey string
}

func createUserWithKey(t *testing.T, repos *repository.Repositories, orgID uint, role, name string) string {
	t.Helper()
	raw, hash, err := models.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(context.Background(), &models.User{
		OrganizationID: orgID,
		Name:           name,
		Email:          strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@acme.test",
		Role:           role,
		Status:         models.STATUS_ACTIVE,
		APIKeyHash:     hash,
	}))
	return raw
}

func newServer(t *testing.T) *server {
	t.Helper()

	repos := testutil.NewRepositories(t)
	org := testutil.CreateOrganization(t, repos)
	testutil.ConnectMail(t, repos, org.ID)

	s := &server{repos: repos, org: org, connect: &memoryConnect{}}
	s.adminKey = createUserWithKey(t, repos, org.ID, models.ROLE_ADMIN, "Ada Admin")
	s.techKey = createUserWithKey(t, repos, org.ID, models.ROLE_TECHNICIAN, "Tom Tech")
	s.otherKey = createUserWithKey(t, repos, org.ID, models.ROLE_TECHNICIAN, "Olga Other")

	tech, err := repos.User.GetByAPIKeyHash(context.Background(), models.HashAPIKey(s.techKey))
	require.NoError(t, err)
	s.invoice = testutil.CreateInvoice(t, repos, org.ID, tech.ID, testutil.Day(2025, 11, 3))

	gmail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"gm-1"}`)
	}))
	t.Cleanup(gmail.Close)

	reminders := reminder.NewService(repos)
	api := &controllers.API{
		Repos:      repos,
		Reminders:  reminders,
		Generator:  scheduler.NewGenerator(repos),
		Dispatcher: dispatch.NewDispatcher(repos, reminders, fixedTokens{}, mail.NewGmailSender(2*time.Second, mail.WithEndpoint(gmail.URL+"/"))),
		Connect:    s.connect,
	}
	s.app = fiber.New()
	router.InstallRouter(s.app, api)
	return s
}

func (s *server) do(t *testing.T, method, path, key string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *server) generate(t *testing.T, date string) map[string]any {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/reminders/generate", s.adminKey, map[string]any{
		"date":            date,
		"organization_id": s.org.ID,
	})
	require.Equal(t, http.StatusOK, status, body)
	return body
}

func (s *server) firstReminderID(t *testing.T, key string) uint {
	t.Helper()
	status, body := s.do(t, http.MethodGet, "/api/v1/reminders?view=upcoming", key, nil)
	require.Equal(t, http.StatusOK, status, body)
	list := body["reminders"].([]any)
	require.NotEmpty(t, list)
	return uint(list[0].(map[string]any)["id"].(float64))
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/reminders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	status, _ = s.do(t, http.MethodGet, "/api/v1/reminders", "ifx_not-a-key", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reminders", nil)
	req.Header.Set("Authorization", "Bearer "+s.adminKey)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateAndListReminders(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/reminders/generate", s.techKey, map[string]any{"date": "2025-11-09"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = s.do(t, http.MethodPost, "/api/v1/reminders/generate", s.adminKey, map[string]any{"date": "09.11.2025"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", body["error"])

	report := s.generate(t, "2025-11-09")
	assert.Equal(t, true, report["success"])
	assert.Equal(t, float64(1), report["reminders_generated"])

	again := s.generate(t, "2025-11-09")
	assert.Equal(t, float64(0), again["reminders_generated"])

	status, body = s.do(t, http.MethodGet, "/api/v1/reminders?view=upcoming", s.techKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = s.do(t, http.MethodGet, "/api/v1/reminders?view=upcoming", s.otherKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"], "technicians only see reminders of their own invoices")

	status, body = s.do(t, http.MethodGet, "/api/v1/reminders?view=archive", s.adminKey, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", body["error"])
}

func TestReminderLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	s.generate(t, "2025-11-09")
	id := s.firstReminderID(t, s.techKey)
	path := fmt.Sprintf("/api/v1/reminders/%d", id)

	status, body := s.do(t, http.MethodPost, path+"/pause", s.otherKey, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, path+"/pause", s.techKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["reminder"].(map[string]any)["is_paused"])

	status, body = s.do(t, http.MethodPost, path+"/pause", s.techKey, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "precondition_failed", body["error"])

	status, _ = s.do(t, http.MethodPost, path+"/resume", s.adminKey, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodPost, path+"/reschedule", s.techKey, map[string]any{"scheduled_at": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", body["error"])

	status, body = s.do(t, http.MethodPost, path+"/reschedule", s.techKey, map[string]any{"scheduled_at": "2025-11-12T10:00:00+01:00"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "2025-11-12T09:00:00Z", body["reminder"].(map[string]any)["scheduled_at"])

	status, body = s.do(t, http.MethodPatch, path+"/content", s.techKey, map[string]any{"subject": "", "body": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPatch, path+"/content", s.techKey, map[string]any{"subject": "Friendly nudge", "body": "Please pay soon."})
	require.Equal(t, http.StatusOK, status, body)

	status, body = s.do(t, http.MethodPost, path+"/phone-outcome", s.techKey, map[string]any{"outcome": "will_pay"})
	assert.Equal(t, http.StatusConflict, status, "email reminders take no phone outcome")

	status, body = s.do(t, http.MethodPost, path+"/send", s.techKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "completed", body["outcome"].(map[string]any)["status"])

	status, body = s.do(t, http.MethodPost, path+"/send", s.techKey, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])

	status, body = s.do(t, http.MethodGet, path+"/events", s.techKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(6), body["count"])

	status, body = s.do(t, http.MethodGet, "/api/v1/reminders?view=history", s.adminKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

func TestBatchEndpoints(t *testing.T) {
	s := newServer(t)
	s.generate(t, "2025-11-09")
	id := s.firstReminderID(t, s.adminKey)

	status, _ := s.do(t, http.MethodPost, "/api/v1/reminders/bulk-send", s.techKey, map[string]any{"ids": []uint{id}})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, http.MethodPost, "/api/v1/reminders/bulk-send", s.adminKey, map[string]any{"ids": []uint{}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/api/v1/reminders/send-pending", s.adminKey, map[string]any{
		"date":            "2025-11-10",
		"organization_id": s.org.ID,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1), body["processed"])
	assert.Equal(t, float64(1), body["sent"])

	status, body = s.do(t, http.MethodPost, "/api/v1/reminders/send-pending", s.adminKey, nil)
	assert.Equal(t, http.StatusForbidden, status, "all organizations need a superadmin")
}

func TestOrganizationSettings(t *testing.T) {
	s := newServer(t)
	base := fmt.Sprintf("/api/v1/organizations/%d", s.org.ID)

	status, body := s.do(t, http.MethodGet, base+"/steps", s.techKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["steps"], 3)

	steps := []map[string]any{
		{"delay_days": 30, "channel": "phone", "name": "Call"},
		{"delay_days": 30, "channel": "phone", "name": "Call again"},
	}
	status, _ = s.do(t, http.MethodPut, base+"/steps", s.techKey, map[string]any{"steps": steps})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPut, base+"/steps", s.adminKey, map[string]any{"steps": steps})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", body["error"])

	steps[1] = map[string]any{"delay_days": 5, "channel": "email", "name": "Nudge", "subject_template": "Invoice {{invoice_number}}", "body_template": "Hi {{client_name}}"}
	status, body = s.do(t, http.MethodPut, base+"/steps", s.adminKey, map[string]any{"steps": steps})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(5), body["steps"].([]any)[0].(map[string]any)["delay_days"])

	status, body = s.do(t, http.MethodPut, base+"/reminder-settings", s.adminKey, map[string]any{
		"reminder_send_time": "23:00",
		"timezone":           "UTC",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPut, base+"/reminder-settings", s.adminKey, map[string]any{
		"reminder_send_time": "08:30",
		"timezone":           "Europe/Berlin",
		"auto_send_enabled":  false,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Europe/Berlin", body["timezone"])
	assert.Equal(t, false, body["auto_send_enabled"])

	status, body = s.do(t, http.MethodPost, "/api/v1/reminders/send-pending", s.adminKey, map[string]any{"organization_id": s.org.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "precondition_failed", body["error"])
}

func TestStartMailConnect(t *testing.T) {
	s := newServer(t)

	status, body := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/organizations/%d/mail/connect", s.org.ID), s.adminKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "/auth/google?state=state-1", body["url"])
	require.Len(t, s.connect.issued, 1)
	assert.Equal(t, s.org.ID, s.connect.issued[0].OrganizationID)

	status, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/organizations/%d/mail/connect", s.org.ID+100), s.adminKey, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/auth/facebook?state=x", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, http.MethodGet, "/auth/google", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
