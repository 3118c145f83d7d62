package activecampaign

import (
	"context"
	"fmt"
	"net/url"

	"github.com/salinamaris/crmsync"
)

// FieldID resolves a contact custom field by its title. The fields
// endpoint has no server-side filter, so the full listing is scanned for
// the first exact (case-sensitive) title match.
func (c *Client) FieldID(ctx context.Context, title string) (string, error) {
	var res struct {
		Fields []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"fields"`
	}
	if err := c.get(ctx, "fields", nil, &res); err != nil {
		return "", err
	}
	for _, f := range res.Fields {
		if f.Title == title {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("contact field %q: %w", title, crmsync.ErrFieldNotFound)
}

// DealFieldID resolves a deal custom field by its label, same contract as
// FieldID but against the dealCustomFieldMeta resource.
func (c *Client) DealFieldID(ctx context.Context, label string) (string, error) {
	var res struct {
		Meta []struct {
			ID         string `json:"id"`
			FieldLabel string `json:"fieldLabel"`
		} `json:"dealCustomFieldMeta"`
	}
	if err := c.get(ctx, "dealCustomFieldMeta", nil, &res); err != nil {
		return "", err
	}
	for _, f := range res.Meta {
		if f.FieldLabel == label {
			return f.ID, nil
		}
	}
	return "", fmt.Errorf("deal field %q: %w", label, crmsync.ErrFieldNotFound)
}

// TagID resolves a tag by name. Matching happens account-side through the
// search parameter; the first element of the collection wins.
func (c *Client) TagID(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("search", name)

	var res struct {
		Tags []struct {
			ID string `json:"id"`
		} `json:"tags"`
	}
	if err := c.get(ctx, "tags", params, &res); err != nil {
		return "", err
	}
	if len(res.Tags) == 0 {
		return "", fmt.Errorf("tag %q: %w", name, crmsync.ErrTagNotFound)
	}
	return res.Tags[0].ID, nil
}

// ListID resolves a list by name via the filters[name] parameter; the
// first element of the collection wins.
func (c *Client) ListID(ctx context.Context, name string) (string, error) {
	params := url.Values{}
	params.Set("filters[name]", name)

	var res struct {
		Lists []struct {
			ID string `json:"id"`
		} `json:"lists"`
	}
	if err := c.get(ctx, "lists", params, &res); err != nil {
		return "", err
	}
	if len(res.Lists) == 0 {
		return "", fmt.Errorf("list %q: %w", name, crmsync.ErrListNotFound)
	}
	return res.Lists[0].ID, nil
}
