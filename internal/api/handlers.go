package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), identity.FromContext(r.Context()), req.toDomain())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
			AppointmentID: appt.ID,
			Status:        string(appt.Status),
			PaymentStatus: string(appt.PaymentStatus),
			Appointment:   newAppointmentResponse(appt),
		})
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), identity.FromContext(r.Context()), id, req.toDomain())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.CompleteAppointment(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func listDentistAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_dentist_id")
		if !ok {
			return
		}
		f, ok := parseFilter(w, r)
		if !ok {
			return
		}

		list, err := svc.ListByDentist(r.Context(), identity.FromContext(r.Context()), id, f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeAppointmentList(w, list, f)
	}
}

func listPatientAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_patient_id")
		if !ok {
			return
		}
		f, ok := parseFilter(w, r)
		if !ok {
			return
		}

		list, err := svc.ListByPatient(r.Context(), identity.FromContext(r.Context()), id, f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeAppointmentList(w, list, f)
	}
}

func writeAppointmentList(w http.ResponseWriter, list []appointment.Appointment, f appointment.Filter) {
	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(list)),
		Limit:        f.Limit,
		Offset:       f.Offset,
	}
	for i := range list {
		resp.Appointments = append(resp.Appointments, newAppointmentResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseFilter reads status (comma separated), from, to, limit and offset.
func parseFilter(w http.ResponseWriter, r *http.Request) (appointment.Filter, bool) {
	q := r.URL.Query()
	verr := &apperr.ValidationError{}
	var f appointment.Filter

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := appointment.Status(strings.TrimSpace(s))
			if !st.Valid() {
				verr.Add("status", "must be one of pending, confirmed, completed, cancelled")
				break
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := q.Get("from"); raw != "" {
		d, err := slottime.ParseDate(raw)
		if err != nil {
			verr.Add("from", "must be YYYY-MM-DD")
		} else {
			f.From = &d
		}
	}
	if raw := q.Get("to"); raw != "" {
		d, err := slottime.ParseDate(raw)
		if err != nil {
			verr.Add("to", "must be YYYY-MM-DD")
		} else {
			f.To = &d
		}
	}

	limit, ok := queryInt(r, "limit", 20)
	if !ok {
		verr.Add("limit", "must be a non-negative integer")
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		verr.Add("offset", "must be a non-negative integer")
	}
	if limit > 100 {
		limit = 100
	}
	if limit == 0 {
		limit = 20
	}
	f.Limit, f.Offset = limit, offset

	if err := verr.OrNil(); err != nil {
		writeServiceError(w, r, err)
		return appointment.Filter{}, false
	}
	return f, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
