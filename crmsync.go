// Package crmsync bridges the booking application to the ActiveCampaign
// CRM and to the checkout fulfilment pipeline. It declares the domain
// types and service contracts; the concrete adapters live in the
// activecampaign, checkout, mail and postgres packages.
package crmsync

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFieldNotFound  = errors.New("custom field not found")
	ErrTagNotFound    = errors.New("tag not found")
	ErrListNotFound   = errors.New("list not found")
	ErrDealNotFound   = errors.New("deal not found")
	ErrDuplicateOrder = errors.New("order already recorded")
	ErrOrderNotFound  = errors.New("order not found")
)

// Contact is an application-side contact. Standard attributes are typed
// fields; everything else goes into Custom, keyed by the CRM field title
// (e.g. "Sprache"). Unknown titles are dropped during sync with a warning.
type Contact struct {
	Email     string            `json:"email"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Phone     string            `json:"phone"`
	Custom    map[string]string `json:"custom"`
}

// Deal is an application-side deal. Value is in cents. Currency and Group
// are defaulted by the adapter when left empty. Custom is keyed by the CRM
// deal field label (e.g. "Reservationsnummer").
type Deal struct {
	Contact  string            `json:"contact"`
	Title    string            `json:"title"`
	Value    int               `json:"value"`
	Currency string            `json:"currency"`
	Group    string            `json:"group"`
	ID       string            `json:"id"`
	Custom   map[string]string `json:"custom"`
}

// DealStatus selects which deal stage a search covers.
type DealStatus int

const (
	DealOpen DealStatus = 0
	DealWon  DealStatus = 1
	DealLost DealStatus = 2
)

// CRM is the synchronization surface consumed by the web layer. Every
// mutating operation issues exactly one write after its lookups; lookups
// that miss return the package sentinel errors instead of proceeding with
// an unresolved id.
type CRM interface {
	// SyncContact creates or updates (keyed by email, CRM-side) a contact
	// and returns its CRM id.
	SyncContact(ctx context.Context, c Contact) (string, error)

	// TagContact resolves tagName and attaches the tag to the contact.
	TagContact(ctx context.Context, tagName, contactID string) error

	// SubscribeToList subscribes a contact to a list.
	SubscribeToList(ctx context.Context, listID, contactID string) error

	// ListID resolves a list by name.
	ListID(ctx context.Context, name string) (string, error)

	// CreateDeal creates a deal and returns its CRM id. No existence check
	// is made: two calls with the same reference number create two deals.
	CreateDeal(ctx context.Context, d Deal) (string, error)

	// UpdateDeal locates the deal carrying the business reference number
	// and overwrites it with d. An optional contact email narrows the
	// search. Returns ErrDealNotFound without writing when no deal matches.
	UpdateDeal(ctx context.Context, refNumber int, d Deal, email string) error
}

// Order is the durable record of one fulfilled checkout session.
type Order struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	PaymentIntent string    `json:"payment_intent"`
	Email         string    `json:"email"`
	AmountTotal   int64     `json:"amount_total"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderStore persists fulfilled orders. Add returns ErrDuplicateOrder when
// the session was already recorded, which makes webhook redelivery a no-op.
type OrderStore interface {
	Add(ctx context.Context, o Order) error
	GetBySession(ctx context.Context, sessionID string) (Order, error)
}

// PaymentInfo summarizes how a checkout session was paid, pre-formatted
// for the confirmation mail templates.
type PaymentInfo struct {
	PaymentType        string `json:"payment_type,omitempty"`
	PaymentDescription string `json:"payment_description"`
	Total              string `json:"total"`
	Taxes              string `json:"taxes"`
	StripeReference    string `json:"stripe_reference"`
}

// LineItem is one purchased position of a checkout session.
type LineItem struct {
	Name     string   `json:"name"`
	Price    string   `json:"price,omitempty"`
	Quantity int64    `json:"quantity,omitempty"`
	Services []string `json:"services,omitempty"`
}

// Confirmation is the dynamic-template payload for confirmation mails.
type Confirmation struct {
	PaymentInfo PaymentInfo            `json:"payment_info"`
	Items       []LineItem             `json:"items"`
	Customer    map[string]interface{} `json:"customer"`
}
