package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/mentorpack/internal/booking"
	"github.com/foxseedlab/mentorpack/internal/entitlement"
	"github.com/foxseedlab/mentorpack/internal/repository"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

const testToken = "facts-secret"

type stubAvailability struct {
	result    *booking.AvailabilityResult
	err       error
	lastQuery booking.AvailabilityQuery
}

func (s *stubAvailability) Compute(_ context.Context, q booking.AvailabilityQuery) (*booking.AvailabilityResult, error) {
	s.lastQuery = q
	return s.result, s.err
}

type stubBooking struct {
	bookResult  *booking.BookResult
	bookErr     error
	capacity    *booking.Capacity
	capacityErr error
	lastRequest booking.BookRequest
}

func (s *stubBooking) Book(_ context.Context, req booking.BookRequest) (*booking.BookResult, error) {
	s.lastRequest = req
	return s.bookResult, s.bookErr
}

func (s *stubBooking) MentorCapacity(context.Context, string) (*booking.Capacity, error) {
	return s.capacity, s.capacityErr
}

type stubProvisioning struct {
	result   *entitlement.ProvisionResult
	err      error
	lastFact entitlement.PaymentCompleted
}

func (s *stubProvisioning) Run(_ context.Context, fact entitlement.PaymentCompleted) (*entitlement.ProvisionResult, error) {
	s.lastFact = fact
	return s.result, s.err
}

type stubRefunds struct {
	result *entitlement.RefundResult
	err    error
}

func (s *stubRefunds) Run(context.Context, entitlement.PaymentRefunded) (*entitlement.RefundResult, error) {
	return s.result, s.err
}

type stubCompletions struct {
	result *entitlement.CompletionResult
	err    error
}

func (s *stubCompletions) MarkCompleted(context.Context, string) (*entitlement.CompletionResult, error) {
	return s.result, s.err
}

type stubs struct {
	availability *stubAvailability
	booking      *stubBooking
	provisioning *stubProvisioning
	refunds      *stubRefunds
	completions  *stubCompletions
}

func newTestServer(t *testing.T) (*Server, *stubs) {
	t.Helper()
	st := &stubs{
		availability: &stubAvailability{},
		booking:      &stubBooking{},
		provisioning: &stubProvisioning{},
		refunds:      &stubRefunds{},
		completions:  &stubCompletions{},
	}
	srv := NewServer(Services{
		Availability: st.availability,
		Booking:      st.booking,
		Provisioning: st.provisioning,
		Refunds:      st.refunds,
		Completions:  st.completions,
	}, Options{FactsToken: testToken, MetricsEnabled: true})
	return srv, st
}

func doRequest(t *testing.T, srv *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func factRequest(target, body string) *http.Request {
	req := jsonRequest(http.MethodPost, target, body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func decodeError(t *testing.T, body []byte) errorDetail {
	t.Helper()
	var out errorBody
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return out.Error
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("expected prometheus exposition format")
	}
}

func TestGetAvailability(t *testing.T) {
	srv, st := newTestServer(t)
	slotStart := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st.availability.result = &booking.AvailabilityResult{
		Slots: []booking.Slot{{Start: slotStart, End: slotStart.Add(time.Hour)}},
	}

	resp, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet,
		"/v1/mentors/mentor-1/availability?start=2026-03-02T09:00:00Z&end=2026-03-02T12:00:00Z&slotMinutes=30", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	q := st.availability.lastQuery
	if q.MentorID != "mentor-1" || q.SlotMinutes != 30 || !q.Start.Equal(slotStart) {
		t.Fatalf("unexpected query: %+v", q)
	}
	var got booking.AvailabilityResult
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Slots) != 1 || !got.Slots[0].Start.Equal(slotStart) {
		t.Fatalf("unexpected slots: %+v", got)
	}
}

func TestGetAvailability_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed start",
			target:     "/v1/mentors/mentor-1/availability?start=yesterday&end=2026-03-02T12:00:00Z",
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidRequest,
		},
		{
			name:       "missing end",
			target:     "/v1/mentors/mentor-1/availability?start=2026-03-02T09:00:00Z",
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidRequest,
		},
		{
			name:       "slot size out of bounds",
			target:     "/v1/mentors/mentor-1/availability?start=2026-03-02T09:00:00Z&end=2026-03-02T12:00:00Z&slotMinutes=5",
			serviceErr: &booking.Error{Code: booking.CodeInvalidSlotSize, Message: "slot size must be between 15 and 180 minutes"},
			wantStatus: http.StatusBadRequest,
			wantCode:   string(booking.CodeInvalidSlotSize),
		},
		{
			name:       "unknown mentor",
			target:     "/v1/mentors/mentor-404/availability?start=2026-03-02T09:00:00Z&end=2026-03-02T12:00:00Z",
			serviceErr: &booking.Error{Code: booking.CodeMentorNotFound, Message: "mentor not found"},
			wantStatus: http.StatusNotFound,
			wantCode:   string(booking.CodeMentorNotFound),
		},
		{
			name:       "calendar outage",
			target:     "/v1/mentors/mentor-1/availability?start=2026-03-02T09:00:00Z&end=2026-03-02T12:00:00Z",
			serviceErr: errors.New("query busy: context deadline exceeded"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   codeTemporarilyUnavail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, st := newTestServer(t)
			st.availability.err = tt.serviceErr

			resp, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if got := decodeError(t, body); got.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, got.Code)
			}
		})
	}
}

func TestGetCapacity(t *testing.T) {
	srv, st := newTestServer(t)
	st.booking.capacity = &booking.Capacity{MentorID: "mentor-1", MaxActiveStudents: 5, ActiveSeats: 3, Available: 2}

	resp, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/v1/mentors/mentor-1/capacity", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got booking.Capacity
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Available != 2 {
		t.Fatalf("unexpected capacity: %+v", got)
	}
}

func TestPostSession(t *testing.T) {
	scheduledAt := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	session := &repository.Session{
		ID:              "session-1",
		MentorID:        "mentor-1",
		StudentID:       "user-1",
		SessionPackID:   "pack-1",
		ScheduledAt:     scheduledAt,
		DurationMinutes: 60,
		Status:          repository.SessionStatusScheduled,
		CalendarEventID: "evt-1",
	}
	body := `{"packId":"pack-1","scheduledAt":"2026-03-03T15:00:00Z"}`

	tests := []struct {
		name       string
		userID     string
		body       string
		result     *booking.BookResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "created", userID: "user-1", body: body, result: &booking.BookResult{Session: session, Created: true}, wantStatus: http.StatusCreated},
		{name: "existing", userID: "user-1", body: body, result: &booking.BookResult{Session: session}, wantStatus: http.StatusOK},
		{name: "missing user", body: body, wantStatus: http.StatusUnauthorized, wantCode: codeUnauthenticated},
		{name: "missing pack", userID: "user-1", body: `{"scheduledAt":"2026-03-03T15:00:00Z"}`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{name: "bad time", userID: "user-1", body: `{"packId":"pack-1","scheduledAt":"tomorrow"}`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{
			name:       "slot taken",
			userID:     "user-1",
			body:       body,
			err:        &booking.Error{Code: booking.CodeTimeSlotUnavailable, Message: "slot is no longer available"},
			wantStatus: http.StatusConflict,
			wantCode:   string(booking.CodeTimeSlotUnavailable),
		},
		{
			name:       "pack expired",
			userID:     "user-1",
			body:       body,
			err:        &booking.Error{Code: booking.CodePackExpired, Message: "pack expired"},
			wantStatus: http.StatusConflict,
			wantCode:   string(booking.CodePackExpired),
		},
		{name: "store outage", userID: "user-1", body: body, err: errors.New("persist session: connection reset"), wantStatus: http.StatusServiceUnavailable, wantCode: codeTemporarilyUnavail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, st := newTestServer(t)
			st.booking.bookResult, st.booking.bookErr = tt.result, tt.err

			req := jsonRequest(http.MethodPost, "/v1/sessions", tt.body)
			if tt.userID != "" {
				req.Header.Set(userIDHeader, tt.userID)
			}
			resp, respBody := doRequest(t, srv, req)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, respBody)
			}
			if tt.wantCode != "" {
				if got := decodeError(t, respBody); got.Code != tt.wantCode {
					t.Fatalf("expected code %s, got %s", tt.wantCode, got.Code)
				}
				return
			}
			if st.booking.lastRequest.UserID != tt.userID || !st.booking.lastRequest.ScheduledAt.Equal(scheduledAt) {
				t.Fatalf("unexpected book request: %+v", st.booking.lastRequest)
			}
			var got struct {
				Session sessionResponse `json:"session"`
				Created bool            `json:"created"`
			}
			if err := json.Unmarshal(respBody, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Session.ID != "session-1" || got.Session.Status != "scheduled" || got.Created != tt.result.Created {
				t.Fatalf("unexpected response: %+v", got)
			}
		})
	}
}

func TestFacts_RequireBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)
	for name, header := range map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"scheme":  "Basic " + testToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := jsonRequest(http.MethodPost, "/v1/facts/session-completed", `{"sessionId":"session-1"}`)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, _ := doRequest(t, srv, req)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestPostPaymentCompleted(t *testing.T) {
	srv, st := newTestServer(t)
	st.provisioning.result = &entitlement.ProvisionResult{OrderID: "order-1", PackID: "pack-1"}

	resp, body := doRequest(t, srv, factRequest("/v1/facts/payment-completed",
		`{"checkoutId":"cs_1","orderId":"order-1","userId":"user-1","productId":"prod-4","provider":"stripe"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	want := entitlement.PaymentCompleted{CheckoutID: "cs_1", OrderID: "order-1", UserID: "user-1", ProductID: "prod-4", Provider: "stripe"}
	if st.provisioning.lastFact != want {
		t.Fatalf("unexpected fact: %+v", st.provisioning.lastFact)
	}
}

func TestFacts_FailureClassification(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		setup      func(st *stubs)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing order id",
			target:     "/v1/facts/payment-completed",
			body:       `{"checkoutId":"cs_1"}`,
			setup:      func(*stubs) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidRequest,
		},
		{
			name:   "order never appeared",
			target: "/v1/facts/payment-completed",
			body:   `{"checkoutId":"cs_1","orderId":"order-404"}`,
			setup: func(st *stubs) {
				st.provisioning.err = workflow.Permanent(fmt.Errorf("order order-404: %w", entitlement.ErrOrderNotFound))
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "ORDER_NOT_FOUND",
		},
		{
			name:   "refund without capture",
			target: "/v1/facts/payment-refunded",
			body:   `{"providerPaymentId":"pi_404","refundId":"re_1"}`,
			setup: func(st *stubs) {
				st.refunds.err = workflow.Permanent(entitlement.ErrPaymentNotFound)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "PAYMENT_NOT_FOUND",
		},
		{
			name:   "stale completion",
			target: "/v1/facts/session-completed",
			body:   `{"sessionId":"session-1"}`,
			setup: func(st *stubs) {
				st.completions.err = workflow.Permanent(entitlement.ErrInvariantViolation)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INVARIANT_VIOLATION",
		},
		{
			name:   "database down",
			target: "/v1/facts/session-completed",
			body:   `{"sessionId":"session-1"}`,
			setup: func(st *stubs) {
				st.completions.err = errors.New("session_completion/debit_pack failed after 5 attempts: connection refused")
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   codeTemporarilyUnavail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, st := newTestServer(t)
			tt.setup(st)

			resp, body := doRequest(t, srv, factRequest(tt.target, tt.body))
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if got := decodeError(t, body); got.Code != tt.wantCode {
				t.Fatalf("expected code %s, got %s", tt.wantCode, got.Code)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if got := decodeError(t, body); got.Code != codeNotFound {
		t.Fatalf("expected code %s, got %s", codeNotFound, got.Code)
	}
}
