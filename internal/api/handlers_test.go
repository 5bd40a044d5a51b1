package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/metrics"
	"github.com/dentalcare/slot-booking/internal/reservation"
)

type stubAppointments struct {
	appt      *appointment.Appointment
	err       error
	gotActor  identity.Actor
	gotCreate appointment.CreateRequest
	gotUpdate appointment.UpdateRequest
	gotFilter appointment.Filter
}

func (s *stubAppointments) CreateAppointment(_ context.Context, actor identity.Actor, req appointment.CreateRequest) (*appointment.Appointment, error) {
	s.gotActor, s.gotCreate = actor, req
	return s.appt, s.err
}

func (s *stubAppointments) GetAppointment(_ context.Context, actor identity.Actor, _ uuid.UUID) (*appointment.Appointment, error) {
	s.gotActor = actor
	return s.appt, s.err
}

func (s *stubAppointments) UpdateAppointment(_ context.Context, actor identity.Actor, _ uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error) {
	s.gotActor, s.gotUpdate = actor, req
	return s.appt, s.err
}

func (s *stubAppointments) CancelAppointment(_ context.Context, actor identity.Actor, _ uuid.UUID) (*appointment.Appointment, error) {
	s.gotActor = actor
	return s.appt, s.err
}

func (s *stubAppointments) CompleteAppointment(_ context.Context, actor identity.Actor, _ uuid.UUID) (*appointment.Appointment, error) {
	s.gotActor = actor
	return s.appt, s.err
}

func (s *stubAppointments) ListByDentist(_ context.Context, _ identity.Actor, _ uuid.UUID, f appointment.Filter) ([]appointment.Appointment, error) {
	s.gotFilter = f
	if s.err != nil {
		return nil, s.err
	}
	return []appointment.Appointment{*s.appt}, nil
}

func (s *stubAppointments) ListByPatient(_ context.Context, _ identity.Actor, _ uuid.UUID, f appointment.Filter) ([]appointment.Appointment, error) {
	s.gotFilter = f
	if s.err != nil {
		return nil, s.err
	}
	return []appointment.Appointment{*s.appt}, nil
}

type stubReservations struct {
	res       *reservation.Reservation
	err       error
	available bool
	gotReq    reservation.ReserveRequest
}

func (s *stubReservations) Reserve(_ context.Context, _ identity.Actor, req reservation.ReserveRequest) (*reservation.Reservation, error) {
	s.gotReq = req
	return s.res, s.err
}

func (s *stubReservations) Release(context.Context, identity.Actor, uuid.UUID) error { return s.err }

func (s *stubReservations) IsSlotAvailable(context.Context, uuid.UUID, time.Time) (bool, error) {
	return s.available, s.err
}

func (s *stubReservations) FindByPatient(context.Context, uuid.UUID) ([]reservation.Reservation, error) {
	return []reservation.Reservation{*s.res}, s.err
}

func (s *stubReservations) FindByDentist(context.Context, uuid.UUID) ([]reservation.Reservation, error) {
	return []reservation.Reservation{*s.res}, s.err
}

type stubAvailability struct {
	slots []availability.TimeSlot
	loc   *time.Location
}

func (s stubAvailability) GetAvailableSlots(context.Context, uuid.UUID, time.Time) ([]availability.TimeSlot, error) {
	return s.slots, nil
}

func (s stubAvailability) Location() *time.Location { return s.loc }

type stubAlternatives struct {
	gotCount int
}

func (s *stubAlternatives) Alternatives(_ context.Context, _ uuid.UUID, _ time.Time, _ string, count int) ([]apperr.AlternativeSlot, error) {
	s.gotCount = count
	return []apperr.AlternativeSlot{{Date: "2030-05-06", Time: "11:00"}}, nil
}

type stubDentists struct {
	d   *dentist.Dentist
	err error
}

func (s stubDentists) Get(context.Context, uuid.UUID) (*dentist.Dentist, error) { return s.d, s.err }

func (s stubDentists) UpdateSchedule(_ context.Context, _ identity.Actor, _ uuid.UUID, doc dentist.ScheduleDoc) (*dentist.Dentist, error) {
	if s.err != nil {
		return nil, s.err
	}
	sched, err := dentist.ParseSchedule(doc)
	if err != nil {
		return nil, err
	}
	d := *s.d
	d.Schedule = sched
	return &d, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type harness struct {
	router       http.Handler
	appointments *stubAppointments
	reservations *stubReservations
	alternatives *stubAlternatives
	registry     *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	appt := &appointment.Appointment{
		ID:            uuid.New(),
		DentistID:     uuid.New(),
		PatientName:   "Ada Patient",
		Date:          time.Date(2030, 5, 6, 0, 0, 0, 0, time.UTC),
		Time:          "10:00",
		Status:        appointment.StatusConfirmed,
		PaymentMethod: appointment.PaymentCash,
		PaymentStatus: appointment.PaymentPending,
	}
	res := &reservation.Reservation{ID: uuid.New(), DentistID: appt.DentistID, PatientID: uuid.New()}
	sched, err := dentist.ParseSchedule(dentist.ScheduleDoc{Days: map[string]string{"monday": "09:00-12:00"}})
	require.NoError(t, err)

	h := &harness{
		appointments: &stubAppointments{appt: appt},
		reservations: &stubReservations{res: res, available: true},
		alternatives: &stubAlternatives{},
		registry:     prometheus.NewRegistry(),
	}
	h.router = NewRouter(RouterConfig{
		Appointments: h.appointments,
		Reservations: h.reservations,
		Availability: stubAvailability{
			slots: []availability.TimeSlot{{Date: "2030-05-06", Time: "09:00", Available: true}},
			loc:   time.UTC,
		},
		Alternatives:     h.alternatives,
		Dentists:         stubDentists{d: &dentist.Dentist{ID: appt.DentistID, Schedule: sched}},
		PgPool:           okPinger{},
		Metrics:          metrics.NewBookingMetrics(h.registry),
		Gatherer:         h.registry,
		Logger:           zerolog.Nop(),
		AlternativeCount: 5,
		Env:              "test",
		Version:          "v0.0.0",
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateAppointmentHandler(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()

	rec := h.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientName:   "Ada Patient",
		PatientEmail:  "ada@example.com",
		PatientPhone:  "+49 30 1234567",
		DentistEmail:  "molar@clinic.test",
		Date:          "2030-05-06",
		Time:          "10:00",
		PaymentMethod: "cash",
	}, map[string]string{headerUserID: user.String(), headerUserRole: "patient"})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBody[CreateAppointmentResponse](t, rec)
	assert.Equal(t, h.appointments.appt.ID, resp.AppointmentID)
	assert.Equal(t, "confirmed", resp.Status)
	assert.Equal(t, "pending", resp.PaymentStatus)
	assert.Equal(t, "2030-05-06", resp.Appointment.Date)

	assert.Equal(t, user, h.appointments.gotActor.ID)
	assert.Equal(t, appointment.PaymentCash, h.appointments.gotCreate.PaymentMethod)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointmentHandlerConflict(t *testing.T) {
	h := newHarness(t)
	h.appointments.err = fmt.Errorf("create: %w", &apperr.SlotUnavailableError{
		Message:       "This time slot was just booked by another patient. Please select a different time.",
		RequestedDate: "2030-05-06",
		RequestedTime: "10:00",
		Alternatives:  []apperr.AlternativeSlot{{Date: "2030-05-06", Time: "10:30"}},
	})

	rec := h.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ConflictResponse](t, rec)
	assert.Equal(t, "slot_unavailable", resp.Error)
	assert.Equal(t, "2030-05-06", resp.RequestedDate)
	assert.Equal(t, []apperr.AlternativeSlot{{Date: "2030-05-06", Time: "10:30"}}, resp.AlternativeSlots)
}

func TestCreateAppointmentHandlerConflictWithNoAlternatives(t *testing.T) {
	h := newHarness(t)
	h.appointments.err = &apperr.SlotUnavailableError{Message: "taken", Alternatives: []apperr.AlternativeSlot{}}

	rec := h.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alternativeSlots":[]`)
}

func TestCreateAppointmentHandlerValidation(t *testing.T) {
	h := newHarness(t)
	h.appointments.err = (&apperr.ValidationError{}).Add("patientEmail", "must be a valid email address")

	rec := h.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Equal(t, "must be a valid email address", resp.Details["patientEmail"])
}

func TestCreateAppointmentHandlerBadJSON(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeBody[ErrorResponse](t, rec).Error)
}

func TestInvalidUserHeader(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil, map[string]string{headerUserID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user_id", decodeBody[ErrorResponse](t, rec).Error)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"cancellation window", fmt.Errorf("x: %w", apperr.ErrCancellationWindowExpired), http.StatusBadRequest, "cancellation_window_expired"},
		{"not found", fmt.Errorf("x: %w", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{"forbidden", fmt.Errorf("x: %w", apperr.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"internal", errors.New("pq: relation appointments does not exist"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.appointments.err = tt.err

			rec := h.do(t, http.MethodDelete, "/appointments/"+uuid.NewString(), nil, nil)
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Error)
			assert.NotContains(t, rec.Body.String(), "relation appointments")
		})
	}
}

func TestUpdateAppointmentHandler(t *testing.T) {
	h := newHarness(t)
	status := "cancelled"

	rec := h.do(t, http.MethodPut, "/appointments/"+uuid.NewString(), UpdateAppointmentRequest{Status: &status}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.appointments.gotUpdate.Status)
	assert.Equal(t, appointment.StatusCancelled, *h.appointments.gotUpdate.Status)
}

func TestAppointmentHandlerRejectsBadID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/appointments/not-a-uuid/complete", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", decodeBody[ErrorResponse](t, rec).Error)
}

func TestListDentistAppointmentsFilter(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/dentists/"+uuid.NewString()+"/appointments?status=confirmed,pending&from=2030-05-01&limit=500", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []appointment.Status{appointment.StatusConfirmed, appointment.StatusPending}, h.appointments.gotFilter.Statuses)
	require.NotNil(t, h.appointments.gotFilter.From)
	assert.Equal(t, 100, h.appointments.gotFilter.Limit)
	assert.Len(t, decodeBody[AppointmentListResponse](t, rec).Appointments, 1)

	rec = h.do(t, http.MethodGet, "/patients/"+uuid.NewString()+"/appointments?status=lost", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailableSlotsHandler(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	rec := h.do(t, http.MethodGet, "/dentists/"+id.String()+"/slots?date=2030-05-06", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SlotsResponse](t, rec)
	assert.Equal(t, id, resp.DentistID)
	require.Len(t, resp.Slots, 1)
	assert.Equal(t, "09:00", resp.Slots[0].Time)

	rec = h.do(t, http.MethodGet, "/dentists/"+id.String()+"/slots?date=tomorrow", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlternativesHandler(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/dentists/"+uuid.NewString()+"/alternatives?date=2030-05-06&time=10:00&count=50", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxAlternatives, h.alternatives.gotCount)
	resp := decodeBody[AlternativesResponse](t, rec)
	assert.Equal(t, "10:00", resp.RequestedTime)
	assert.Len(t, resp.AlternativeSlots, 1)

	rec = h.do(t, http.MethodGet, "/dentists/"+uuid.NewString()+"/alternatives?date=2030-05-06&time=10", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleHandlers(t *testing.T) {
	h := newHarness(t)
	id := uuid.NewString()

	rec := h.do(t, http.MethodGet, "/dentists/"+id+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "09:00-12:00", decodeBody[ScheduleResponse](t, rec).Days["monday"])

	rec = h.do(t, http.MethodPut, "/dentists/"+id+"/availability", dentist.ScheduleDoc{
		Days: map[string]string{"friday": "12:00-09:00"},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "days.friday")
}

func TestCheckSlotHandler(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/slots/check?dentist_id="+uuid.NewString()+"&slot_time=2030-05-06T10:00:00Z", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[SlotCheckResponse](t, rec).Available)

	rec = h.do(t, http.MethodGet, "/slots/check?dentist_id=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveSlotHandler(t *testing.T) {
	h := newHarness(t)
	patient := uuid.New()

	rec := h.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
		DentistID: uuid.NewString(),
		PatientID: patient.String(),
		Date:      "2030-05-06",
		Time:      "10:00",
	}, map[string]string{headerUserID: patient.String()})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC), h.reservations.gotReq.SlotTime)
	assert.Equal(t, patient, h.reservations.gotReq.PatientID)
}

func TestReserveSlotHandlerConflict(t *testing.T) {
	h := newHarness(t)
	h.reservations.err = apperr.SlotUnavailable("held by another checkout")

	rec := h.do(t, http.MethodPost, "/reservations", ReserveSlotRequest{
		DentistID: uuid.NewString(),
		PatientID: uuid.NewString(),
		SlotTime:  "2030-05-06T10:00:00Z",
	}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alternativeSlots")
}

func TestReleaseReservationHandler(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodDelete, "/reservations/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h.reservations.err = fmt.Errorf("reservation: %w", apperr.ErrNotFound)
	rec = h.do(t, http.MethodDelete, "/reservations/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReservationsHandler(t *testing.T) {
	h := newHarness(t)
	patient := h.reservations.res.PatientID

	rec := h.do(t, http.MethodGet, "/reservations?patient_id="+patient.String(), nil, map[string]string{headerUserID: patient.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ReservationListResponse](t, rec).Reservations, 1)

	rec = h.do(t, http.MethodGet, "/reservations?patient_id="+patient.String(), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/reservations", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodGet, "/health/live", nil, nil)

	rec := h.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dental_booking_http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `route="/health/live"`)
}
