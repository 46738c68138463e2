package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock
}

const claimSQL = `UPDATE "booking_slots" SET .* WHERE \(month = \$\d+ AND name = \$\d+ AND booked = \$\d+\)`

func TestClaimSlot_SQL(t *testing.T) {
	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      error
	}{
		{
			name: "Unbooked slot is claimed by the conditional update",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claimSQL).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "Booked slot reports a conflict",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claimSQL).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT count\(\*\) FROM "booking_slots" WHERE month = \$1 AND name = \$2`).
					WithArgs(testMonth, "Week 1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			},
			expectedErr: ErrConflict,
		},
		{
			name: "Unknown slot reports not found",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claimSQL).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT count\(\*\) FROM "booking_slots"`).
					WithArgs(testMonth, "Week 1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
			},
			expectedErr: ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			tc.mockExpectations(mock)

			err := claimSlot(gormDB, testMonth, "Week 1", "Alice", time.Now())
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
