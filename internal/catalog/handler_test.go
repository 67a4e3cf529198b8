package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/platform/auth"
)

var testSecret = []byte("catalog-test-secret")

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1", auth.RequireAuth(testSecret)), f.svc)
	return r
}

func do(t *testing.T, r http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := auth.SignToken(testSecret, "u1", role, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorJSON struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func Test_Handler_Copies(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)

	w := do(t, r, http.MethodGet, "/api/v1/copies?book_id=10&order=asc&limit=3", auth.RoleUser, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list ListCopiesResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(4), list.Total)
	assert.Len(t, list.Items, 3)
	assert.Equal(t, 3, list.NextOffset)

	w = do(t, r, http.MethodGet, "/api/v1/copies/3", auth.RoleUser, "")
	require.Equal(t, http.StatusOK, w.Code)
	var c CopyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "A-003", c.InventoryNumber)

	w = do(t, r, http.MethodGet, "/api/v1/books/10/availability?library_id=1", auth.RoleUser, "")
	require.Equal(t, http.StatusOK, w.Code)
	var av AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &av))
	assert.Equal(t, 3, av.Available)
}

func Test_Handler_AddCopy(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)
	body := `{"book_id":40,"library_id":1,"inventory_number":"D-001"}`

	w := do(t, r, http.MethodPost, "/api/v1/copies", auth.RoleStaff, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/api/v1/copies/6", w.Header().Get("Location"))

	w = do(t, r, http.MethodPost, "/api/v1/copies", auth.RoleStaff, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/copies", auth.RoleUser, `{"book_id":41,"library_id":1,"inventory_number":"D-002"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func Test_Handler_Errors(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad_copy_id", http.MethodGet, "/api/v1/copies/x", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown_copy", http.MethodGet, "/api/v1/copies/99", "", http.StatusNotFound, "NOT_FOUND"},
		{"bad_status", http.MethodGet, "/api/v1/copies?status=lost", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad_book_id", http.MethodGet, "/api/v1/books/abc/availability", "", http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing_fields", http.MethodPost, "/api/v1/copies", `{"book_id":1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, auth.RoleStaff, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			var e errorJSON
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tt.code, e.Error.Code)
		})
	}
}

func Test_Handler_Labels(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f)

	w := do(t, r, http.MethodGet, "/api/v1/copies/labels.csv?library_id=2&encoding=utf-8", auth.RoleStaff, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "labels.csv")
	assert.Equal(t, "B-001,10,2,4\n", w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/copies/labels.csv", auth.RoleUser, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
