package practice

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haloweavedev/laine/internal/nexhealth"
)

type fakeNexHealth struct {
	nexhealth.API
	types []nexhealth.AppointmentType
	err   error
}

func (f *fakeNexHealth) ListAppointmentTypes(_ context.Context, _ string) ([]nexhealth.AppointmentType, error) {
	return f.types, f.err
}

func TestSyncAppointmentTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	api := &fakeNexHealth{types: []nexhealth.AppointmentType{
		{ID: "nx_100", Name: "Adult Prophy", DurationMinutes: 60, Bookable: true},
		{ID: "nx_200", Name: "Limited Exam", DurationMinutes: 30, Bookable: true},
	}}

	mock.ExpectExec("INSERT INTO appointment_types").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO appointment_types").WillReturnResult(sqlmock.NewResult(0, 1))

	syncer := NewSyncer(api, NewStore(db), nil)
	n, err := syncer.SyncAppointmentTypes(context.Background(), "prac_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncAppointmentTypesAPIError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	api := &fakeNexHealth{err: assert.AnError}
	syncer := NewSyncer(api, NewStore(db), nil)

	n, err := syncer.SyncAppointmentTypes(context.Background(), "prac_1")
	assert.Error(t, err)
	assert.Zero(t, n)
}
