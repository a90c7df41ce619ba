package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_Ping(t *testing.T) {
	tests := []struct {
		name    string
		expect  func(mock pgxmock.PgxPoolIface)
		wantErr string
	}{
		{
			name: "clean schema",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT dirty FROM schema_migrations").
					WillReturnRows(pgxmock.NewRows([]string{"dirty"}).AddRow(false))
			},
		},
		{
			name: "dirty schema",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT dirty FROM schema_migrations").
					WillReturnRows(pgxmock.NewRows([]string{"dirty"}).AddRow(true))
			},
			wantErr: "did not complete",
		},
		{
			name: "unreachable",
			expect: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT dirty FROM schema_migrations").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.expect(mock)

			hc := NewHealthCheck(mock)
			err = hc.Ping(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
			assert.Equal(t, "postgresql", hc.Name())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
