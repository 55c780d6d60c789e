// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetEventsCountDecodesRows(t *testing.T) {
	engine, mock := newMockEngine(t)
	rows := sqlmock.NewRows([]string{"event_name", "count", "percentage"}).
		AddRow("page_view", int64(42), 70.0).
		AddRow("signup", int64(18), 30.0)
	mock.ExpectQuery("event_counts").WillReturnRows(rows)

	out, err := engine.GetEventsCount(context.Background(), EventsCountRequest{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "page_view", out[0].Name)
	require.Equal(t, int64(42), out[0].Count)
	require.InDelta(t, 70.0, out[0].Percentage, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveVisitorsCountDecodesScalar(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("active_visitors").WillReturnRows(sqlmock.NewRows([]string{"active_visitors"}).AddRow(int64(7)))

	count, err := engine.GetActiveVisitorsCount(context.Background(), 1, nil, 5)
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventsCountSurfacesQueryError(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("event_counts").WillReturnError(context.DeadlineExceeded)

	_, err := engine.GetEventsCount(context.Background(), EventsCountRequest{ProjectID: 1})
	require.Error(t, err)
}

func TestEngineWithNilDBReturnsTypedError(t *testing.T) {
	engine := New(nil)
	_, err := engine.GetEventsCount(context.Background(), EventsCountRequest{ProjectID: 1, Start: time.Now()})
	require.Error(t, err)
}
