package activecampaign

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/salinamaris/crmsync"
)

type dealField struct {
	CustomFieldID string `json:"customFieldId"`
	FieldValue    string `json:"fieldValue"`
}

type dealBody struct {
	Contact  string      `json:"contact,omitempty"`
	Title    string      `json:"title,omitempty"`
	Value    int         `json:"value,omitempty"`
	Currency string      `json:"currency"`
	Group    string      `json:"group"`
	ID       string      `json:"id,omitempty"`
	Fields   []dealField `json:"fields"`
}

type dealEnvelope struct {
	Deal dealBody `json:"deal"`
}

// buildDeal is buildContact for deals: typed attributes on the top level,
// Custom entries resolved through the deal field metadata. Currency and
// group are always sent, defaulting to "chf" and pipeline group "1".
func (c *Client) buildDeal(ctx context.Context, in crmsync.Deal) (dealBody, error) {
	body := dealBody{
		Contact:  in.Contact,
		Title:    in.Title,
		Value:    in.Value,
		Currency: in.Currency,
		Group:    in.Group,
		ID:       in.ID,
		Fields:   []dealField{},
	}
	if body.Currency == "" {
		body.Currency = "chf"
	}
	if body.Group == "" {
		body.Group = "1"
	}

	for _, name := range sortedKeys(in.Custom) {
		id, err := c.DealFieldID(ctx, name)
		if errors.Is(err, crmsync.ErrFieldNotFound) {
			c.log.Warnw("unknown deal field ignored", "field", name)
			continue
		}
		if err != nil {
			return dealBody{}, err
		}
		body.Fields = append(body.Fields, dealField{CustomFieldID: id, FieldValue: in.Custom[name]})
	}

	return body, nil
}

// CreateDeal posts a new deal and returns its CRM id. There is no
// existence check: creating twice with the same reference number yields
// two deals. Updates must go through UpdateDeal.
func (c *Client) CreateDeal(ctx context.Context, in crmsync.Deal) (string, error) {
	body, err := c.buildDeal(ctx, in)
	if err != nil {
		return "", err
	}

	var res struct {
		Deal struct {
			ID string `json:"id"`
		} `json:"deal"`
	}
	if err := c.post(ctx, "deals", dealEnvelope{Deal: body}, &res); err != nil {
		return "", err
	}
	return res.Deal.ID, nil
}

// FindDealID locates a deal by the booking reference number stored in the
// reference custom field. ActiveCampaign cannot filter on custom field
// values, so the deal listing is fetched with dealCustomFieldData
// side-loaded and scanned client-side. A contact email, when given, is
// passed as a search filter to keep the listing small. The first matching
// record wins; the listing order is whatever the account returns.
func (c *Client) FindDealID(ctx context.Context, refNumber int, status crmsync.DealStatus, contactEmail string) (string, error) {
	params := url.Values{}
	params.Set("filters[stage]", strconv.Itoa(int(status)))
	params.Set("include", "dealCustomFieldData")
	if contactEmail != "" {
		params.Set("filters[search_field]", "email")
		params.Set("filters[search]", contactEmail)
	}

	var res struct {
		CustomFieldData []struct {
			DealID        string `json:"deal_id"`
			CustomFieldID string `json:"custom_field_id"`
			NumberValue   string `json:"custom_field_number_value"`
		} `json:"dealCustomFieldData"`
	}
	if err := c.get(ctx, "deals", params, &res); err != nil {
		return "", err
	}

	fieldID, err := c.DealFieldID(ctx, c.refField)
	if err != nil {
		return "", fmt.Errorf("resolving reference field: %w", err)
	}

	for _, f := range res.CustomFieldData {
		if f.CustomFieldID != fieldID {
			continue
		}
		// The account returns the numeric value as a string like
		// "318482.00"; parse and compare as integer.
		n, err := strconv.ParseFloat(f.NumberValue, 64)
		if err != nil {
			continue
		}
		if int(n) == refNumber {
			return f.DealID, nil
		}
	}

	return "", fmt.Errorf("deal with %s %d: %w", c.refField, refNumber, crmsync.ErrDealNotFound)
}

// UpdateDeal locates the deal carrying refNumber among open deals and
// overwrites it. When the lookup misses, the write is not attempted and
// the lookup error is returned.
func (c *Client) UpdateDeal(ctx context.Context, refNumber int, in crmsync.Deal, email string) error {
	id, err := c.FindDealID(ctx, refNumber, crmsync.DealOpen, email)
	if err != nil {
		return err
	}

	body, err := c.buildDeal(ctx, in)
	if err != nil {
		return err
	}

	return c.put(ctx, "deals", id, dealEnvelope{Deal: body}, nil)
}
