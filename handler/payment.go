package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/salinamaris/crmsync"
	"github.com/salinamaris/crmsync/catalog"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

// Webhook payloads above this size are rejected unread.
const maxWebhookBody = 1 << 20

// CheckoutService is the slice of the checkout package the payment
// handlers use.
type CheckoutService interface {
	PublicKey() string
	NewSession(p catalog.Product, successURL, cancelURL string) (string, error)
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
	ParseSession(session *stripe.CheckoutSession) (crmsync.Confirmation, error)
}

// ConfirmationSender delivers one templated confirmation mail.
type ConfirmationSender interface {
	SendConfirmation(to, templateID string, data crmsync.Confirmation) error
}

// PaymentConfig carries the fulfilment wiring: where the site lives and
// which templates/addresses confirmations go to.
type PaymentConfig struct {
	PublicURL        string
	InternalTo       string
	InternalTemplate string
	CustomerTemplate string
}

type PaymentHandler struct {
	checkout CheckoutService
	cat      *catalog.Catalog
	orders   crmsync.OrderStore
	mailer   ConfirmationSender
	cfg      PaymentConfig
	log      *zap.SugaredLogger
}

func NewPaymentHandler(checkout CheckoutService, cat *catalog.Catalog, orders crmsync.OrderStore, mailer ConfirmationSender, cfg PaymentConfig, log *zap.SugaredLogger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		cat:      cat,
		orders:   orders,
		mailer:   mailer,
		cfg:      cfg,
		log:      log,
	}
}

// Products lists the active catalog entries for the shop page.
func (ph PaymentHandler) Products(rw http.ResponseWriter, r *http.Request) {
	respond(r.Context(), rw, http.StatusOK, ph.cat.Products())
}

// StripePay creates a checkout session for the product in the id query
// parameter and hands the session id plus publishable key to the page.
func (ph PaymentHandler) StripePay(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.URL.Query().Get("id")
	if id == "" {
		respondErr(ctx, rw, http.StatusForbidden, errors.New("no product id"))
		return
	}
	product, ok := ph.cat.ByID(id)
	if !ok {
		respondErr(ctx, rw, http.StatusForbidden, errors.New("unknown product id"))
		return
	}

	sessionID, err := ph.checkout.NewSession(product,
		ph.cfg.PublicURL+"/payment/thanks",
		ph.cfg.PublicURL+"/payment/products",
	)
	if err != nil {
		ph.log.Errorw("StripePay", "product", id, "error", err.Error())
		respondErr(ctx, rw, http.StatusBadGateway, err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]string{
		"checkout_session_id": sessionID,
		"checkout_public_key": ph.checkout.PublicKey(),
	})
}

// StripeWebhook fulfils completed checkout sessions: verify the
// signature, send the internal and customer confirmation mails, then
// record the order. The order row is written last so a failed send
// leaves the session unrecorded and Stripe's retry fulfils it from
// scratch; a redelivered session that is already on record is
// acknowledged without mailing again.
func (ph PaymentHandler) StripeWebhook(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(rw, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		ph.log.Errorw("StripeWebhook", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("invalid payload"))
		return
	}

	event, err := ph.checkout.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		ph.log.Errorw("StripeWebhook", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("invalid signature"))
		return
	}

	if event.Type != "checkout.session.completed" {
		respond(ctx, rw, http.StatusOK, map[string]string{})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		ph.log.Errorw("StripeWebhook", "error", err.Error())
		respondErr(ctx, rw, http.StatusBadRequest, errors.New("invalid session payload"))
		return
	}

	if _, err := ph.orders.GetBySession(ctx, session.ID); err == nil {
		ph.log.Infow("StripeWebhook", "session", session.ID, "status", "already fulfilled")
		respond(ctx, rw, http.StatusOK, map[string]string{})
		return
	} else if !errors.Is(err, crmsync.ErrOrderNotFound) {
		ph.log.Errorw("StripeWebhook", "session", session.ID, "error", err.Error())
		respondErr(ctx, rw, http.StatusInternalServerError, err)
		return
	}

	conf, err := ph.checkout.ParseSession(&session)
	if err != nil {
		ph.log.Errorw("StripeWebhook", "session", session.ID, "error", err.Error())
		respondErr(ctx, rw, http.StatusBadGateway, err)
		return
	}

	email := ""
	if session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}

	if err := ph.mailer.SendConfirmation(ph.cfg.InternalTo, ph.cfg.InternalTemplate, conf); err != nil {
		ph.log.Errorw("StripeWebhook", "session", session.ID, "error", err.Error())
		respondErr(ctx, rw, http.StatusBadGateway, err)
		return
	}
	if err := ph.mailer.SendConfirmation(email, ph.cfg.CustomerTemplate, conf); err != nil {
		ph.log.Errorw("StripeWebhook", "session", session.ID, "error", err.Error())
		respondErr(ctx, rw, http.StatusBadGateway, err)
		return
	}

	order := crmsync.Order{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		PaymentIntent: conf.PaymentInfo.StripeReference,
		Email:         email,
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		CreatedAt:     time.Now().UTC(),
	}
	if err := ph.orders.Add(ctx, order); err != nil {
		if errors.Is(err, crmsync.ErrDuplicateOrder) {
			// A concurrent retry fulfilled the session between the
			// lookup and this insert; the duplicate mails are the cost.
			ph.log.Infow("StripeWebhook", "session", session.ID, "status", "already fulfilled")
			respond(ctx, rw, http.StatusOK, map[string]string{})
			return
		}
		ph.log.Errorw("StripeWebhook", "session", session.ID, "error", err.Error())
		respondErr(ctx, rw, http.StatusInternalServerError, err)
		return
	}

	respond(ctx, rw, http.StatusOK, map[string]string{})
}
