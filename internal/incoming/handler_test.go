package incoming

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
)

func (f *fixture) router() http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, cet).MountRoutes(r)
	return r
}

func TestHandlerOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	router := f.router()

	body := `{"product_id":"` + f.gin.ID.String() + `","ordered_quantity":6,"order_date":"2024-03-01","expected_arrival_date":"2024-03-08"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.Equal(t, "2024-03-08", created.ExpectedArrivalDate.Format("2006-01-02"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/incoming-orders", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []Order `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list.Items, 1)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders/"+created.ID.String()+"/arrive", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var arrival Arrival
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&arrival))
	require.Equal(t, 8.0, arrival.Movement.QtyAfter)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders/"+created.ID.String()+"/arrive", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/incoming-orders", nil))
	require.JSONEq(t, `{"items":[]}`, rr.Body.String())
}

func TestHandlerCreateValidation(t *testing.T) {
	f := newFixture(t)
	router := f.router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders", strings.NewReader(`{"ordered_quantity":0,"order_date":"01/03/2024"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	require.Contains(t, problem.Errors, "product_id")
	require.Contains(t, problem.Errors, "order_date")

	body := `{"product_id":"` + f.gin.ID.String() + `","ordered_quantity":1,"order_date":"2024-03-05","expected_arrival_date":"2024-03-01"}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	problem = httpx.ProblemDetail{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	require.Contains(t, problem.Errors, "expected_arrival_date")
}

func TestHandlerCancelAndBadID(t *testing.T) {
	f := newFixture(t)
	router := f.router()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders/nope/cancel", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	order, err := f.svc.Create(t.Context(), CreateInput{ProductID: f.gin.ID, OrderedQuantity: 2})
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/incoming-orders/"+order.ID.String()+"/cancel", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var cancelled Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&cancelled))
	require.Equal(t, StatusCancelled, cancelled.Status)
}
