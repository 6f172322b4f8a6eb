package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoverse/internal/common"
	"algoverse/internal/platform/store"
)

func TestFetchEncodesFiltersOrderAndLimit(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"tc1","points":5,"is_sample":true}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "service-key", 5*time.Second)
	rows, err := c.Fetch(context.Background(), "testcases", store.Query{
		Filter: store.Where(store.Eq("problem_id", "p1"), store.Eq("is_sample", true)),
		Select: []string{"id", "points"},
		Order:  []store.Order{{Field: "created_at"}, {Field: "id", Desc: true}},
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "tc1", rows[0]["id"])

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/rest/v1/testcases", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "eq.p1", q.Get("problem_id"))
	assert.Equal(t, "eq.true", q.Get("is_sample"))
	assert.Equal(t, "id,points", q.Get("select"))
	assert.Equal(t, "created_at.asc,id.desc", q.Get("order"))
	assert.Equal(t, "1", q.Get("limit"))
	assert.Equal(t, "service-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", got.Header.Get("Authorization"))
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
}

func TestInsertSendsObjectForOneRecordAndArrayForMany(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"x"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", time.Second)
	_, err := c.Insert(context.Background(), "submissions", store.Record{"id": "s1"})
	require.NoError(t, err)
	_, err = c.Insert(context.Background(), "submission_results", store.Record{"id": "r1"}, store.Record{"id": "r2"})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	var single map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &single))
	assert.Equal(t, "s1", single["id"])
	var many []map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodies[1]), &many))
	assert.Len(t, many, 2)
}

func TestInsertWithNoRecordsIsANoop(t *testing.T) {
	c := New("http://127.0.0.1:1", "k", time.Second)
	rows, err := c.Insert(context.Background(), "submission_results")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStatusMapping(t *testing.T) {
	status := http.StatusConflict
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"code":"23505","message":"duplicate key"}`))
	}))
	defer srv.Close()
	c := New(srv.URL, "k", time.Second)

	_, err := c.Insert(context.Background(), "submissions", store.Record{"id": "dup"})
	require.ErrorIs(t, err, common.ErrConflict)
	assert.Contains(t, err.Error(), "duplicate key")

	status = http.StatusBadGateway
	_, err = c.Update(context.Background(), "user_progress", store.Where(store.Eq("id", "p")), store.Record{"attempts": 2})
	require.ErrorIs(t, err, common.ErrUpstream)
	assert.Contains(t, err.Error(), "502")
}

func TestTransportFailureIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "k", time.Second).Fetch(context.Background(), "problems", store.Query{})
	require.ErrorIs(t, err, common.ErrUpstream)
}

func TestRejectsUnsafeIdentifiers(t *testing.T) {
	c := New("http://127.0.0.1:1", "k", time.Second)
	_, err := c.Fetch(context.Background(), "problems;drop", store.Query{})
	require.ErrorIs(t, err, common.ErrBadRequest)
	_, err = c.Delete(context.Background(), "problems", store.Where(store.Eq("id&x", "1")))
	require.ErrorIs(t, err, common.ErrBadRequest)
}

func TestDeleteAndUpdateUseFilters(t *testing.T) {
	var methods, queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		queries = append(queries, r.URL.RawQuery)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := New(srv.URL, "k", time.Second)

	_, err := c.Update(context.Background(), "problems", store.Where(store.Eq("id", "p1")), store.Record{"title": "T"})
	require.NoError(t, err)
	_, err = c.Delete(context.Background(), "problems", store.Where(store.Eq("id", "p1")))
	require.NoError(t, err)

	assert.Equal(t, []string{http.MethodPatch, http.MethodDelete}, methods)
	assert.Equal(t, []string{"id=eq.p1", "id=eq.p1"}, queries)
}

func TestNilFiltersUseIsNull(t *testing.T) {
	params, err := filterParams(store.Where(
		store.Eq("deleted_at", nil),
		store.Neq("output", nil),
		store.Eq("user_id", "u1"),
	))
	require.NoError(t, err)
	assert.Equal(t, "is.null", params.Get("deleted_at"))
	assert.Equal(t, "not.is.null", params.Get("output"))
	assert.Equal(t, "eq.u1", params.Get("user_id"))
}
