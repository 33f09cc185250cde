package directory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListUsersDecodesMixedRecordTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"record": 7, "id": "1712345678", "lastnames": "Marquez", "names": "Gabriel", "user": "gmarquez"},
			{"record": "8", "id": 1712345679, "lastnames": "Lopez", "names": "Ana", "user": "alopez"}
		]`))
	}))
	defer srv.Close()

	users, err := New(srv.URL).ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "7", users[0].Record.String())
	require.Equal(t, "8", users[1].Record.String())
	require.Equal(t, "1712345679", users[1].NationalID.String())
	require.Equal(t, "Gabriel Marquez", users[0].FullName())
}

func TestListUsersTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListUsers(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestRecordAttendancePostsBothRecordFields(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": "registered"}`))
	}))
	defer srv.Close()

	msg, err := New(srv.URL).RecordAttendance(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "registered", msg)
	require.JSONEq(t, `{"record_user": 42, "join_user": 42}`, gotBody)
}

func TestRecordAttendanceBodyErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "duplicate entry"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).RecordAttendance(context.Background(), 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate entry")
}

func TestListAttendanceAcceptsBothShapes(t *testing.T) {
	bare := `[{"record": 1, "date": "2025-05-07", "time": "17:22:10", "join_date": "2025-05-07 17:22:10"}]`
	wrapped := `{"data": ` + bare + `}`

	for _, body := range []string{bare, wrapped} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "42", r.URL.Query().Get("record"))
			require.NotEmpty(t, r.URL.Query().Get("t"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))
		rows, err := New(srv.URL).ListAttendance(context.Background(), 42)
		srv.Close()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "2025-05-07", rows[0].Date)
		require.Equal(t, "17:22:10", rows[0].Time)
	}
}

func TestListAttendanceUnknownShapeDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows": 3}`))
	}))
	defer srv.Close()

	rows, err := New(srv.URL).ListAttendance(context.Background(), 42)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestListAttendanceMalformedJSONIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListAttendance(context.Background(), 42)
	var te *TransportError
	require.ErrorAs(t, err, &te)
}
