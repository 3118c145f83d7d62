package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/salinamaris/crmsync"
	"go.uber.org/zap"
)

func updateRequest(t *testing.T, ref, query, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPut, "/deals/"+ref+query, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("ref", ref)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateDealEndpoint(t *testing.T) {
	crm := &fakeCRM{dealID: "9"}
	h := NewDealHandler(crm, zap.NewNop().Sugar())

	body := `{"contact":"101","title":"Wellness Weekend","value":50000,"custom":{"Reservationsnummer":"318482"}}`
	r := httptest.NewRequest(http.MethodPost, "/deals", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body)
	}

	var res map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res["deal_id"] != "9" {
		t.Errorf("deal_id = %q, want 9", res["deal_id"])
	}
	if len(crm.created) != 1 || crm.created[0].Title != "Wellness Weekend" {
		t.Errorf("created = %+v", crm.created)
	}
}

func TestCreateDealRequiresContactAndTitle(t *testing.T) {
	crm := &fakeCRM{dealID: "9"}
	h := NewDealHandler(crm, zap.NewNop().Sugar())

	r := httptest.NewRequest(http.MethodPost, "/deals", strings.NewReader(`{"value":100}`))
	w := httptest.NewRecorder()
	h.Create(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(crm.created) != 0 {
		t.Errorf("created = %+v, want none", crm.created)
	}
}

func TestUpdateDealEndpoint(t *testing.T) {
	crm := &fakeCRM{}
	h := NewDealHandler(crm, zap.NewNop().Sugar())

	w := httptest.NewRecorder()
	h.Update(w, updateRequest(t, "318482", "?email=a@b.ch", `{"title":"new"}`))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body)
	}
	if crm.updatedRef != 318482 {
		t.Errorf("ref = %d, want 318482", crm.updatedRef)
	}
	if crm.updatedVia != "a@b.ch" {
		t.Errorf("email = %q, want a@b.ch", crm.updatedVia)
	}
}

func TestUpdateDealNotFound(t *testing.T) {
	crm := &fakeCRM{updateErr: crmsync.ErrDealNotFound}
	h := NewDealHandler(crm, zap.NewNop().Sugar())

	w := httptest.NewRecorder()
	h.Update(w, updateRequest(t, "999999", "", `{"title":"new"}`))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateDealRejectsNonNumericRef(t *testing.T) {
	crm := &fakeCRM{}
	h := NewDealHandler(crm, zap.NewNop().Sugar())

	w := httptest.NewRecorder()
	h.Update(w, updateRequest(t, "abc", "", `{"title":"new"}`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
