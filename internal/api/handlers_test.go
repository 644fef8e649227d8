package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tigdiff/internal/errors"
	"tigdiff/internal/odb"
	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
	"tigdiff/internal/treediff"
	shared "tigdiff/shared/types"
)

// Mock report store
type MockReportBox struct {
	reports map[string]*report.Report
}

func NewMockReportBox() *MockReportBox {
	return &MockReportBox{
		reports: make(map[string]*report.Report),
	}
}

func (m *MockReportBox) Create(r *report.Report) error {
	m.reports[r.ID] = r
	return nil
}

func (m *MockReportBox) Get(id string) (*report.Report, error) {
	if r, ok := m.reports[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", report.ErrNotFound, id)
}

func (m *MockReportBox) Delete(id string) error {
	if _, ok := m.reports[id]; !ok {
		return fmt.Errorf("%w: %s", report.ErrNotFound, id)
	}
	delete(m.reports, id)
	return nil
}

func (m *MockReportBox) List() ([]*report.Report, error) {
	list := []*report.Report{}
	for _, r := range m.reports {
		list = append(list, r)
	}
	return list, nil
}

func (m *MockReportBox) FindByTrees(oldTree, newTree string) ([]*report.Report, error) {
	list := []*report.Report{}
	for _, r := range m.reports {
		if (oldTree == "" || r.OldTree == oldTree) && (newTree == "" || r.NewTree == newTree) {
			list = append(list, r)
		}
	}
	return list, nil
}

type mockDetector struct {
	got rewrites.Rewrites
	err error
}

func (d *mockDetector) Detect(_ context.Context, oldRev, newRev string, rw rewrites.Rewrites) (*report.Report, error) {
	d.got = rw
	if d.err != nil {
		return nil, d.err
	}
	return &report.Report{
		ID:          "r-1",
		OldRevision: oldRev,
		NewRevision: newRev,
		OldTree:     "old",
		NewTree:     "new",
		Entries: []report.Entry{
			{Status: report.Renamed, Path: "b", SourcePath: "a", Similarity: 1},
			{Status: report.Added, Path: "c"},
		},
		CreatedAt: time.Now(),
	}, nil
}

func postDetect(t *testing.T, h *RewritesHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/rewrites", bytes.NewBuffer(data))
	rec := httptest.NewRecorder()
	h.Detect(rec, req)
	return rec
}

func TestRewritesHandler_Detect(t *testing.T) {
	t.Run("uses defaults", func(t *testing.T) {
		det := &mockDetector{}
		box := NewMockReportBox()
		h := NewRewritesHandler(det, box, rewrites.DefaultRewrites(), nil)

		rec := postDetect(t, h, map[string]any{"old": "HEAD~1", "new": "HEAD"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp shared.DetectResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "HEAD~1", resp.Report.OldRevision)
		assert.Equal(t, 1, resp.Summary.Renamed)
		assert.Equal(t, 1, resp.Summary.Added)
		assert.False(t, resp.Saved)
		assert.Empty(t, box.reports)
		assert.Equal(t, rewrites.DefaultRewrites(), det.got)
	})

	t.Run("request options and save", func(t *testing.T) {
		det := &mockDetector{}
		box := NewMockReportBox()
		h := NewRewritesHandler(det, box, rewrites.DefaultRewrites(), nil)

		rec := postDetect(t, h, shared.DetectRequest{
			New:      "HEAD",
			Rewrites: &rewrites.Rewrites{Limit: 3},
			Save:     true,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, rewrites.Rewrites{Limit: 3}, det.got)
		assert.Contains(t, box.reports, "r-1")
	})

	t.Run("validation", func(t *testing.T) {
		h := NewRewritesHandler(&mockDetector{}, NewMockReportBox(), rewrites.DefaultRewrites(), nil)

		tests := []struct {
			name string
			body any
		}{
			{"missing new", map[string]any{"old": "HEAD"}},
			{"bad percentage", map[string]any{"new": "HEAD", "rewrites": map[string]any{"percentage": 2}}},
			{"bad limit", map[string]any{"new": "HEAD", "rewrites": map[string]any{"limit": -1}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := postDetect(t, h, tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)

				var apiErr errors.Error
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
				assert.Equal(t, errors.ErrorTypeValidation, apiErr.Type)
			})
		}

		req := httptest.NewRequest("POST", "/api/rewrites", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		h.Detect(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("detector errors", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			wantStatus int
		}{
			{"unknown revision", fmt.Errorf("%w %q: nope", treediff.ErrRevision, "nope"), http.StatusNotFound},
			{"invalid options", fmt.Errorf("%w: limit", rewrites.ErrInvalidRewrites), http.StatusBadRequest},
			{"other", fmt.Errorf("detecting rewrites: %w", rewrites.ErrSources), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := NewRewritesHandler(&mockDetector{err: tt.err}, NewMockReportBox(), rewrites.Rewrites{}, nil)
				rec := postDetect(t, h, map[string]any{"new": "nope"})
				assert.Equal(t, tt.wantStatus, rec.Code)
			})
		}
	})
}

func TestReportHandler(t *testing.T) {
	box := NewMockReportBox()
	h := NewReportHandler(box)

	require.NoError(t, box.Create(&report.Report{ID: "one", OldTree: "t1", NewTree: "t2"}))
	require.NoError(t, box.Create(&report.Report{ID: "two", OldTree: "t1", NewTree: "t3"}))

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/reports/one", nil)
		req.SetPathValue("id", "one")
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got report.Report
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "t2", got.NewTree)
	})

	t.Run("get missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/reports/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.Get(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/reports", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []*report.Report
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Len(t, got, 2)
	})

	t.Run("list by trees", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/reports?old_tree=t1&new_tree=t3", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []*report.Report
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "two", got[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/reports/one", nil)
		req.SetPathValue("id", "one")
		rec := httptest.NewRecorder()
		h.Delete(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotContains(t, box.reports, "one")

		rec = httptest.NewRecorder()
		h.Delete(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRoutes(t *testing.T) {
	objects := odb.NewMemory()
	id := objects.InsertString("a\n")
	cache, err := odb.NewCache(objects, 4)
	require.NoError(t, err)
	_, err = cache.Find(context.Background(), id)
	require.NoError(t, err)

	box := NewMockReportBox()
	mux := http.NewServeMux()
	Routes(mux,
		NewRewritesHandler(&mockDetector{}, box, rewrites.DefaultRewrites(), nil),
		NewReportHandler(box),
		HealthHandler("/srv/repo", cache),
	)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health shared.Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "/srv/repo", health.Repository)
	require.NotNil(t, health.Cache)
	assert.Equal(t, 1, health.Cache.Entries)
	assert.Equal(t, int64(1), health.Cache.Misses)

	resp, err = http.Post(srv.URL+"/api/rewrites", "application/json", bytes.NewBufferString(`{"new":"HEAD","save":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/reports/r-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/rewrites")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
