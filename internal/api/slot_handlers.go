package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/reservation"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

const maxAlternatives = 20

func availableSlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_dentist_id")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("date")
		date, err := slottime.ParseDate(raw)
		if err != nil {
			writeServiceError(w, r, apperr.Invalid("date", "must be YYYY-MM-DD"))
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{DentistID: id, Date: raw, Slots: slots})
	}
}

func alternativesHandler(svc AlternativeService, defaultCount int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_dentist_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		verr := &apperr.ValidationError{}
		date, err := slottime.ParseDate(q.Get("date"))
		if err != nil {
			verr.Add("date", "must be YYYY-MM-DD")
		}
		clock := q.Get("time")
		if _, err := slottime.ParseClock(clock); err != nil {
			verr.Add("time", "must be HH:mm")
		}
		count, ok := queryInt(r, "count", defaultCount)
		if !ok || count == 0 {
			verr.Add("count", "must be a positive integer")
		}
		if err := verr.OrNil(); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if count > maxAlternatives {
			count = maxAlternatives
		}

		alts, err := svc.Alternatives(r.Context(), id, date, clock, count)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AlternativesResponse{
			DentistID:        id,
			RequestedDate:    slottime.FormatDate(date),
			RequestedTime:    clock,
			AlternativeSlots: alts,
		})
	}
}

func getScheduleHandler(svc DentistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_dentist_id")
		if !ok {
			return
		}

		d, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newScheduleResponse(d))
	}
}

func updateScheduleHandler(svc DentistService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_dentist_id")
		if !ok {
			return
		}

		var doc dentist.ScheduleDoc
		if !decodeJSON(w, r, &doc) {
			return
		}

		d, err := svc.UpdateSchedule(r.Context(), identity.FromContext(r.Context()), id, doc)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newScheduleResponse(d))
	}
}

func checkSlotHandler(svc ReservationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		verr := &apperr.ValidationError{}

		dentistID, err := uuid.Parse(q.Get("dentist_id"))
		if err != nil {
			verr.Add("dentist_id", "must be a valid UUID")
		}
		slot, err := time.Parse(time.RFC3339, q.Get("slot_time"))
		if err != nil {
			verr.Add("slot_time", "must be an RFC 3339 timestamp")
		}
		if err := verr.OrNil(); err != nil {
			writeServiceError(w, r, err)
			return
		}

		available, err := svc.IsSlotAvailable(r.Context(), dentistID, slot)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotCheckResponse{DentistID: dentistID, SlotTime: slot.UTC(), Available: available})
	}
}

func reserveSlotHandler(svc ReservationService, clinic AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ReserveSlotRequest
		if !decodeJSON(w, r, &body) {
			return
		}

		req, err := body.toDomain(clinicLocation(clinic))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		res, err := svc.Reserve(r.Context(), identity.FromContext(r.Context()), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newReservationResponse(res))
	}
}

func releaseReservationHandler(svc ReservationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_reservation_id")
		if !ok {
			return
		}

		if err := svc.Release(r.Context(), identity.FromContext(r.Context()), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// listReservationsHandler serves ?patient_id= to the patient and
// ?dentist_id= to the dentist, admins both.
func listReservationsHandler(svc ReservationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		actor := identity.FromContext(r.Context())

		var (
			list []reservation.Reservation
			err  error
		)
		switch {
		case q.Get("patient_id") != "":
			id, perr := uuid.Parse(q.Get("patient_id"))
			if perr != nil {
				writeServiceError(w, r, apperr.Invalid("patient_id", "must be a valid UUID"))
				return
			}
			if !actor.Is(id) {
				writeServiceError(w, r, apperr.ErrForbidden)
				return
			}
			list, err = svc.FindByPatient(r.Context(), id)
		case q.Get("dentist_id") != "":
			id, perr := uuid.Parse(q.Get("dentist_id"))
			if perr != nil {
				writeServiceError(w, r, apperr.Invalid("dentist_id", "must be a valid UUID"))
				return
			}
			if !actor.Is(id) {
				writeServiceError(w, r, apperr.ErrForbidden)
				return
			}
			list, err = svc.FindByDentist(r.Context(), id)
		default:
			writeServiceError(w, r, apperr.Invalid("patient_id", "patient_id or dentist_id is required"))
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := ReservationListResponse{Reservations: make([]ReservationResponse, 0, len(list))}
		for i := range list {
			resp.Reservations = append(resp.Reservations, newReservationResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func clinicLocation(svc AvailabilityService) *time.Location {
	if svc == nil || svc.Location() == nil {
		return time.UTC
	}
	return svc.Location()
}

func (b ReserveSlotRequest) toDomain(loc *time.Location) (reservation.ReserveRequest, error) {
	verr := &apperr.ValidationError{}
	var req reservation.ReserveRequest

	if id, err := uuid.Parse(b.DentistID); err != nil {
		verr.Add("dentistId", "must be a valid UUID")
	} else {
		req.DentistID = id
	}
	if id, err := uuid.Parse(b.PatientID); err != nil {
		verr.Add("patientId", "must be a valid UUID")
	} else {
		req.PatientID = id
	}

	instant := b.SlotTime
	if instant == "" {
		instant = b.DateTime
	}
	switch {
	case instant != "":
		t, err := time.Parse(time.RFC3339, instant)
		if err != nil {
			verr.Add("slotTime", "must be an RFC 3339 timestamp")
		}
		req.SlotTime = t
	case b.Date != "" || b.Time != "":
		date, err := slottime.ParseDate(b.Date)
		if err != nil {
			verr.Add("date", "must be YYYY-MM-DD")
			break
		}
		t, err := slottime.Combine(date, b.Time, loc)
		if err != nil {
			verr.Add("time", "must be HH:mm")
			break
		}
		req.SlotTime = t
	default:
		verr.Add("slotTime", "slotTime or date and time is required")
	}

	if err := verr.OrNil(); err != nil {
		return reservation.ReserveRequest{}, err
	}
	return req, nil
}
