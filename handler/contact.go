// Package handler exposes the synchronization and payment operations
// over HTTP for the web front end.
package handler

import (
	"errors"
	"net/http"

	"github.com/salinamaris/crmsync"
	"go.uber.org/zap"
)

type ContactHandler struct {
	crm crmsync.CRM
	log *zap.SugaredLogger
}

func NewContactHandler(crm crmsync.CRM, log *zap.SugaredLogger) *ContactHandler {
	return &ContactHandler{
		crm: crm,
		log: log,
	}
}

type syncContactRequest struct {
	crmsync.Contact
	Tags []string `json:"tags"`
	List string   `json:"list"`
}

// Sync upserts the contact in the CRM, then attaches the requested tags
// and subscribes it to the requested list. Lookups that miss stop the
// request before any further write.
func (ch ContactHandler) Sync(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req syncContactRequest
	if err := decode(r, &req); err != nil {
		ch.log.Errorw("Sync", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, err)
		return
	}
	if req.Email == "" {
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("email is required"))
		return
	}

	contactID, err := ch.crm.SyncContact(ctx, req.Contact)
	if err != nil {
		ch.log.Errorw("Sync", "error", err.Error())
		respondErr(ctx, rw, crmStatus(err), err)
		return
	}

	for _, tag := range req.Tags {
		if err := ch.crm.TagContact(ctx, tag, contactID); err != nil {
			ch.log.Errorw("Sync", "tag", tag, "error", err.Error())
			respondErr(ctx, rw, crmStatus(err), err)
			return
		}
	}

	if req.List != "" {
		listID, err := ch.crm.ListID(ctx, req.List)
		if err != nil {
			ch.log.Errorw("Sync", "list", req.List, "error", err.Error())
			respondErr(ctx, rw, crmStatus(err), err)
			return
		}
		if err := ch.crm.SubscribeToList(ctx, listID, contactID); err != nil {
			ch.log.Errorw("Sync", "list", req.List, "error", err.Error())
			respondErr(ctx, rw, crmStatus(err), err)
			return
		}
	}

	respond(ctx, rw, http.StatusOK, map[string]string{"contact_id": contactID})
}

// crmStatus maps adapter errors onto HTTP statuses: missing CRM entities
// are the caller's problem, everything else is the CRM's.
func crmStatus(err error) int {
	switch {
	case errors.Is(err, crmsync.ErrTagNotFound),
		errors.Is(err, crmsync.ErrListNotFound),
		errors.Is(err, crmsync.ErrFieldNotFound),
		errors.Is(err, crmsync.ErrDealNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
