// Package checkout wraps the Stripe hosted-checkout flow: session
// creation for catalog products, webhook verification, and turning a
// completed session back into the confirmation-mail payload.
package checkout

import (
	"fmt"
	"strings"

	"github.com/salinamaris/crmsync"
	"github.com/salinamaris/crmsync/catalog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// Swiss VAT applied to the voucher prices.
const vatRate = 1.077

// Config is the required properties to use the Stripe account.
type Config struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string

	// ImageBaseURL prefixes product image paths on the checkout page.
	ImageBaseURL string
}

// Checkout talks to Stripe on behalf of the payment handlers.
type Checkout struct {
	sc  *client.API
	cfg Config
	cat *catalog.Catalog
	log *zap.SugaredLogger
}

// New builds a Checkout for the given account and product catalog.
func New(cfg Config, cat *catalog.Catalog, log *zap.SugaredLogger) *Checkout {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &Checkout{sc: sc, cfg: cfg, cat: cat, log: log}
}

// PublicKey returns the publishable key the checkout page needs.
func (c *Checkout) PublicKey() string {
	return c.cfg.PublicKey
}

// NewSession creates a single-item card checkout session for a product
// and returns the session id. The catalog id travels in the product
// metadata so ParseSession can find the product again.
func (c *Checkout) NewSession(p catalog.Product, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		BillingAddressCollection: stripe.String("required"),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		Locale:                   stripe.String("de"),
		SuccessURL:               stripe.String(successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("chf"),
				UnitAmount: stripe.Int64(int64(p.Price) * 100),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(p.Title),
					Description: stripe.String(p.Subtitle),
					Images:      stripe.StringSlice([]string{c.cfg.ImageBaseURL + p.Image}),
					Metadata:    map[string]string{"prod_id": p.ID},
				},
			},
		}},
	}

	s, err := c.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("creating checkout session: %w", err)
	}
	return s.ID, nil
}

// VerifyEvent checks the webhook signature and decodes the event.
func (c *Checkout) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}

// ParseSession reconstructs the confirmation payload for a completed
// session: payment details from the expanded charge, totals with the VAT
// share, purchased items joined with the catalog services, and the
// customer's billing details. Missing pieces degrade instead of failing:
// unknown cards become "Credit Card", unknown products keep the name only.
func (c *Checkout) ParseSession(session *stripe.CheckoutSession) (crmsync.Confirmation, error) {
	currency := strings.ToUpper(string(session.Currency))

	pi, err := c.sc.PaymentIntents.Get(session.PaymentIntent.ID, expandLatestCharge())
	if err != nil {
		return crmsync.Confirmation{}, fmt.Errorf("retrieving payment intent: %w", err)
	}

	conf := crmsync.Confirmation{
		PaymentInfo: crmsync.PaymentInfo{
			PaymentDescription: "Credit Card",
			Total:              amount(currency, session.AmountTotal),
			Taxes:              vatShare(currency, session.AmountTotal),
			StripeReference:    pi.ID,
		},
		Items: []crmsync.LineItem{},
	}

	if pi.LatestCharge != nil && pi.LatestCharge.PaymentMethodDetails != nil && pi.LatestCharge.PaymentMethodDetails.Card != nil {
		card := pi.LatestCharge.PaymentMethodDetails.Card
		conf.PaymentInfo.PaymentType = string(card.Brand)
		conf.PaymentInfo.PaymentDescription = "**** **** **** " + card.Last4
	}

	itemsParams := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(session.ID),
	}
	itemsParams.Limit = stripe.Int64(1)
	items := c.sc.CheckoutSessions.ListLineItems(itemsParams)
	for items.Next() {
		conf.Items = append(conf.Items, c.lineItem(items.LineItem()))
	}
	if err := items.Err(); err != nil {
		return crmsync.Confirmation{}, fmt.Errorf("listing line items: %w", err)
	}

	conf.Customer = c.customer(pi, session)

	return conf, nil
}

// lineItem enriches one purchased position with the catalog services.
func (c *Checkout) lineItem(li *stripe.LineItem) crmsync.LineItem {
	item := crmsync.LineItem{Name: li.Description}

	if li.Price == nil || li.Price.Product == nil {
		return item
	}
	product, err := c.sc.Products.Get(li.Price.Product.ID, nil)
	if err != nil {
		c.log.Warnw("product lookup failed", "product", li.Price.Product.ID, "error", err)
		return item
	}
	p, ok := c.cat.ByID(product.Metadata["prod_id"])
	if !ok {
		c.log.Warnw("product missing from catalog", "prod_id", product.Metadata["prod_id"])
		return item
	}

	item.Price = amount(strings.ToUpper(string(li.Currency)), li.AmountTotal)
	item.Quantity = li.Quantity
	item.Services = p.Details.Services
	return item
}

// customer prefers the charge's billing details and falls back to what
// the checkout page collected.
func (c *Checkout) customer(pi *stripe.PaymentIntent, session *stripe.CheckoutSession) map[string]interface{} {
	if pi.LatestCharge != nil && pi.LatestCharge.BillingDetails != nil {
		bd := pi.LatestCharge.BillingDetails
		return billingMap(bd.Name, bd.Email, bd.Phone, bd.Address)
	}
	if session.CustomerDetails != nil {
		cd := session.CustomerDetails
		return billingMap(cd.Name, cd.Email, cd.Phone, cd.Address)
	}
	return map[string]interface{}{}
}

func expandLatestCharge() *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	return params
}

func billingMap(name, email, phone string, addr *stripe.Address) map[string]interface{} {
	m := map[string]interface{}{
		"name":  name,
		"email": email,
		"phone": phone,
	}
	if addr != nil {
		m["address"] = map[string]interface{}{
			"line1":       addr.Line1,
			"line2":       addr.Line2,
			"postal_code": addr.PostalCode,
			"city":        addr.City,
			"state":       addr.State,
			"country":     addr.Country,
		}
	}
	return m
}

// amount renders cents as "CHF 500.00".
func amount(currency string, cents int64) string {
	return fmt.Sprintf("%s %.2f", currency, float64(cents)/100)
}

// vatShare renders the VAT portion contained in a gross amount.
func vatShare(currency string, cents int64) string {
	gross := float64(cents) / 100
	return fmt.Sprintf("%s %.2f", currency, gross-gross/vatRate)
}
