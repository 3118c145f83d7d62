package activecampaign

import (
	"context"
	"errors"

	"github.com/salinamaris/crmsync"
)

type fieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type contactBody struct {
	Email       string       `json:"email"`
	FirstName   string       `json:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	FieldValues []fieldValue `json:"fieldValues"`
}

type contactEnvelope struct {
	Contact contactBody `json:"contact"`
}

// buildContact maps the typed attributes onto the top level and resolves
// every Custom entry into a fieldValue. Keys are walked in sorted order so
// the payload is deterministic. Unknown keys are dropped with a warning;
// only transport failures abort the build.
func (c *Client) buildContact(ctx context.Context, in crmsync.Contact) (contactBody, error) {
	body := contactBody{
		Email:       in.Email,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Phone:       in.Phone,
		FieldValues: []fieldValue{},
	}

	for _, name := range sortedKeys(in.Custom) {
		id, err := c.FieldID(ctx, name)
		if errors.Is(err, crmsync.ErrFieldNotFound) {
			c.log.Warnw("unknown contact field ignored", "field", name)
			continue
		}
		if err != nil {
			return contactBody{}, err
		}
		body.FieldValues = append(body.FieldValues, fieldValue{Field: id, Value: in.Custom[name]})
	}

	return body, nil
}

// SyncContact posts to the contact/sync endpoint, which ActiveCampaign
// treats as create-or-update keyed by email. The CRM id of the contact is
// returned; validation failures surface as *APIError.
func (c *Client) SyncContact(ctx context.Context, in crmsync.Contact) (string, error) {
	body, err := c.buildContact(ctx, in)
	if err != nil {
		return "", err
	}

	var res struct {
		Contact struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := c.post(ctx, "contact/sync", contactEnvelope{Contact: body}, &res); err != nil {
		return "", err
	}
	return res.Contact.ID, nil
}

// TagContact attaches the named tag to a contact. When the tag does not
// exist the write is not attempted and ErrTagNotFound is returned.
func (c *Client) TagContact(ctx context.Context, tagName, contactID string) error {
	tagID, err := c.TagID(ctx, tagName)
	if err != nil {
		return err
	}

	body := struct {
		ContactTag struct {
			Contact string `json:"contact"`
			Tag     string `json:"tag"`
		} `json:"contactTag"`
	}{}
	body.ContactTag.Contact = contactID
	body.ContactTag.Tag = tagID

	return c.post(ctx, "contactTags", body, nil)
}

// SubscribeToList puts a contact on a list with status subscribed.
func (c *Client) SubscribeToList(ctx context.Context, listID, contactID string) error {
	body := struct {
		ContactList struct {
			List    string `json:"list"`
			Contact string `json:"contact"`
			Status  int    `json:"status"`
		} `json:"contactList"`
	}{}
	body.ContactList.List = listID
	body.ContactList.Contact = contactID
	body.ContactList.Status = 1

	return c.post(ctx, "contactLists", body, nil)
}
