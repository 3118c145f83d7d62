package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/salinamaris/crmsync"
	"go.uber.org/zap"
)

type DealHandler struct {
	crm crmsync.CRM
	log *zap.SugaredLogger
}

func NewDealHandler(crm crmsync.CRM, log *zap.SugaredLogger) *DealHandler {
	return &DealHandler{
		crm: crm,
		log: log,
	}
}

// Create posts a new deal. No reference-number existence check is made:
// the caller owns creation idempotence.
func (dh DealHandler) Create(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var deal crmsync.Deal
	if err := decode(r, &deal); err != nil {
		dh.log.Errorw("Create", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}
	if deal.Contact == "" || deal.Title == "" {
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("contact and title are required"))
		return
	}

	id, err := dh.crm.CreateDeal(ctx, deal)
	if err != nil {
		dh.log.Errorw("Create", "error", err.Error())
		respondErr(ctx, rw, crmStatus(err), err)
		return
	}

	respond(ctx, rw, http.StatusCreated, map[string]string{"deal_id": id})
}

// Update overwrites the deal carrying the reference number in the URL.
// The optional email query parameter narrows the CRM-side search.
func (dh DealHandler) Update(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ref, err := strconv.Atoi(chi.URLParam(r, "ref"))
	if err != nil {
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("reference number is not numeric"))
		return
	}

	var deal crmsync.Deal
	if err := decode(r, &deal); err != nil {
		dh.log.Errorw("Update", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}

	email := r.URL.Query().Get("email")

	if err := dh.crm.UpdateDeal(ctx, ref, deal, email); err != nil {
		dh.log.Errorw("Update", "ref", ref, "error", err.Error())
		switch {
		case errors.Is(err, crmsync.ErrDealNotFound):
			respondErr(ctx, rw, http.StatusNotFound, err)
		default:
			respondErr(ctx, rw, crmStatus(err), err)
		}
		return
	}

	respond(ctx, rw, http.StatusNoContent, nil)
}
