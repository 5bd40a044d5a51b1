package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationCols = []string{"id", "dentist_id", "patient_id", "slot_time", "created_at", "expires_at"}

func sampleReservation(now time.Time) Reservation {
	return Reservation{
		ID:        uuid.New(),
		DentistID: uuid.New(),
		PatientID: uuid.New(),
		SlotTime:  time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC),
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestPgRepositoryInsertClearsExpiredThenInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	r := sampleReservation(now)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM slot_reservations").
		WithArgs(r.DentistID, r.SlotTime, now).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("INSERT INTO slot_reservations").
		WithArgs(r.ID, r.DentistID, r.PatientID, r.SlotTime, r.CreatedAt, r.ExpiresAt).
		WillReturnRows(pgxmock.NewRows(reservationCols).
			AddRow(r.ID, r.DentistID, r.PatientID, r.SlotTime, r.CreatedAt, r.ExpiresAt))
	mock.ExpectCommit()

	repo := NewPgRepository(mock)
	created, err := repo.Insert(context.Background(), r, now)
	require.NoError(t, err)
	assert.Equal(t, r.ID, created.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	r := sampleReservation(now)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM slot_reservations").
		WithArgs(r.DentistID, r.SlotTime, now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("INSERT INTO slot_reservations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: slotUniqueConstraint})
	mock.ExpectRollback()

	repo := NewPgRepository(mock)
	_, err = repo.Insert(context.Background(), r, now)
	assert.True(t, errors.Is(err, ErrSlotReserved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryFindBySlotFiltersExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	dentist := uuid.New()
	slot := time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`expires_at >= \$3`).
		WithArgs(dentist, slot, now).
		WillReturnRows(pgxmock.NewRows(reservationCols))

	repo := NewPgRepository(mock)
	_, err = repo.FindBySlot(context.Background(), dentist, slot, now)
	assert.True(t, errors.Is(err, ErrReservationNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("DELETE FROM slot_reservations").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewPgRepository(mock)
	err = repo.Delete(context.Background(), id)
	assert.True(t, errors.Is(err, ErrReservationNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryDeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`DELETE FROM slot_reservations WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := NewPgRepository(mock)
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
