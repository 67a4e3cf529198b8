package circulation

import (
	"context"
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

var testSecret = []byte("handler-test-secret")

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", auth.RequireAuth(testSecret))
	RegisterRoutes(api, f.svc)
	return r
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, sub, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorJSON struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		IDs     []string `json:"ids"`
	} `json:"error"`
	Loan *LoanResponse `json:"loan"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func Test_Handler_BorrowAndGet(t *testing.T) {
	f := newFixture(t, 3)
	r := newTestRouter(t, f)
	tok := token(t, "p1", auth.RoleUser)

	w := do(r, http.MethodPost, "/api/v1/loans", tok, `{"copy_ids":[2,1],"due_date":"2024-01-08"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loan := decode[LoanResponse](t, w)
	assert.Equal(t, "/api/v1/loans/"+loan.LoanID, w.Header().Get("Location"))
	assert.Equal(t, "p1", loan.PatronID)
	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, "0.00", loan.TotalPenalty)
	require.Len(t, loan.Items, 2)
	assert.Equal(t, int64(1), loan.Items[0].CopyID)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), loan.Items[0].DueDate)
	assert.Equal(t, 7, loan.Items[0].DaysUntilDue)

	w = do(r, http.MethodGet, "/api/v1/loans/"+loan.LoanID, tok, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/v1/loans/"+loan.LoanID, token(t, "p2", auth.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/v1/loans/active", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListLoansResponse](t, w)
	assert.Equal(t, 1, list.Total)
}

func Test_Handler_BorrowErrors(t *testing.T) {
	f := newFixture(t, 5)
	r := newTestRouter(t, f)
	f.borrow(t, "p2", t0.Add(days(7)), 1)
	tok := token(t, "p1", auth.RoleUser)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
		ids    []string
	}{
		{"bad_json", `{"copy_ids":`, http.StatusBadRequest, "INVALID_ARGUMENT", nil},
		{"bad_due_date", `{"copy_ids":[2],"due_date":"next week"}`, http.StatusBadRequest, "INVALID_ARGUMENT", nil},
		{"negative_copy_id", `{"copy_ids":[-2],"due_date":"2024-01-08"}`, http.StatusBadRequest, "INVALID_ARGUMENT", nil},
		{"empty_copies", `{"copy_ids":[],"due_date":"2024-01-08"}`, http.StatusBadRequest, "INVALID_ARGUMENT", nil},
		{"too_far", `{"copy_ids":[2],"due_date":"2024-03-01"}`, http.StatusBadRequest, "INVALID_ARGUMENT", nil},
		{"over_limit", `{"copy_ids":[2,3,4,5],"due_date":"2024-01-08"}`, http.StatusBadRequest, "LIMIT_EXCEEDED", nil},
		{"unknown", `{"copy_ids":[2,77],"due_date":"2024-01-08"}`, http.StatusNotFound, "NOT_FOUND", []string{"77"}},
		{"taken", `{"copy_ids":[1,2],"due_date":"2024-01-08T12:00:00Z"}`, http.StatusConflict, "CONFLICT", []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/loans", tok, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			body := decode[errorJSON](t, w)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.ids, body.Error.IDs)
		})
	}
	assert.Equal(t, CopyAvailable, f.copyStatus(t, 2))
}

func Test_Handler_RequiresToken(t *testing.T) {
	f := newFixture(t, 1)
	r := newTestRouter(t, f)
	w := do(r, http.MethodPost, "/api/v1/loans", "", `{"copy_ids":[1],"due_date":"2024-01-08"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func Test_Handler_ReturnsAndPenalty(t *testing.T) {
	f := newFixture(t, 2)
	r := newTestRouter(t, f)
	tok := token(t, "p1", auth.RoleUser)
	l := f.borrow(t, "p1", t0.Add(days(1)), 1, 2)
	f.clock.Set(t0.Add(days(3)))

	w := do(r, http.MethodPost, "/api/v1/loans/"+l.ID+"/returns", tok, `{"item_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/loans/"+l.ID+"/returns", tok,
		`{"item_ids":["`+l.Items[0].ID+`","ghost"]}`)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
	body := decode[errorJSON](t, w)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, []string{"ghost"}, body.Error.IDs)
	require.NotNil(t, body.Loan)
	assert.Equal(t, LoanOverdue, body.Loan.Status)
	assert.NotNil(t, body.Loan.Items[0].ReturnedAt)

	w = do(r, http.MethodGet, "/api/v1/loans/"+l.ID+"/penalty", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[PenaltyResponse](t, w)
	assert.Equal(t, "4.00", p.TotalPenalty)

	w = do(r, http.MethodPost, "/api/v1/loans/"+l.ID+"/returns", tok, `{"item_ids":["`+l.Items[1].ID+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	loan := decode[LoanResponse](t, w)
	assert.Equal(t, LoanReturned, loan.Status)
}

func Test_Handler_StaffOnlyRoutes(t *testing.T) {
	f := newFixture(t, 1)
	r := newTestRouter(t, f)
	f.borrow(t, "p1", t0.Add(days(2)), 1)
	user := token(t, "p1", auth.RoleUser)
	librarian := token(t, "lib", auth.RoleStaff)

	w := do(r, http.MethodPost, "/api/v1/reminders/due-soon", user, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[errorJSON](t, w).Error.Code)

	w = do(r, http.MethodPost, "/api/v1/reminders/due-soon?window_days=abc", librarian, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/reminders/due-soon", librarian, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[RemindersResponse](t, w).Total)

	w = do(r, http.MethodPost, "/api/v1/reminders/overdue", librarian, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[RemindersResponse](t, w).Total)

	w = do(r, http.MethodGet, "/api/v1/patrons/p1/loans/active", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/v1/patrons/p1/loans/active", token(t, "p2", auth.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(r, http.MethodGet, "/api/v1/patrons/p1/loans/active", librarian, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func Test_Handler_LoanHistory(t *testing.T) {
	f := newFixture(t, 2)
	r := newTestRouter(t, f)
	a := f.borrow(t, "p1", t0.Add(days(7)), 1)
	f.borrow(t, "p1", t0.Add(days(7)), 2)
	_, err := f.svc.ReturnItems(context.Background(), patron("p1"), a.ID, []string{a.Items[0].ID})
	require.NoError(t, err)
	user := token(t, "p1", auth.RoleUser)

	w := do(r, http.MethodGet, "/api/v1/loans", user, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[ListLoansResponse](t, w)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, LoanReturned, list.Items[0].Status)

	// active は返却済みを含まない
	w = do(r, http.MethodGet, "/api/v1/loans/active", user, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ListLoansResponse](t, w).Total)

	w = do(r, http.MethodGet, "/api/v1/patrons/p1/loans", token(t, "lib", auth.RoleStaff), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[ListLoansResponse](t, w).Total)

	w = do(r, http.MethodGet, "/api/v1/patrons/p1/loans", token(t, "p2", auth.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
