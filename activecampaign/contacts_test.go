package activecampaign

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/salinamaris/crmsync"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeAccount routes the handful of endpoints the contact operations
// touch. Each field holds the canned JSON answer; mutating requests are
// recorded for assertions.
type fakeAccount struct {
	fields string
	tags   string

	syncBody  []byte
	tagBody   []byte
	listBody  []byte
	tagPosts  int
	listPosts int
}

func (f *fakeAccount) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3/fields":
			w.Write([]byte(f.fields))
		case "/api/3/tags":
			w.Write([]byte(f.tags))
		case "/api/3/contact/sync":
			f.syncBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"contact":{"id":"101","email":"a@b.ch"}}`))
		case "/api/3/contactTags":
			f.tagPosts++
			f.tagBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"contactTag":{"id":"1"}}`))
		case "/api/3/contactLists":
			f.listPosts++
			f.listBody, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"contactList":{"id":"1"}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newFakeClient(t *testing.T, f *fakeAccount) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL + "/api/3/", Token: "test-token"}, zap.NewNop().Sugar())
}

func TestBuildContactRoutesStandardAndCustomFields(t *testing.T) {
	f := &fakeAccount{fields: `{"fields":[{"id":"42","title":"Sprache"}]}`}
	c := newFakeClient(t, f)

	in := crmsync.Contact{
		Email:     "a@b.ch",
		FirstName: "A",
		Custom:    map[string]string{"Sprache": "Deutsch"},
	}
	body, err := c.buildContact(context.Background(), in)
	if err != nil {
		t.Fatalf("buildContact: %v", err)
	}

	if body.Email != "a@b.ch" || body.FirstName != "A" {
		t.Errorf("standard fields not on top level: %+v", body)
	}
	if len(body.FieldValues) != 1 {
		t.Fatalf("fieldValues = %+v, want exactly one entry", body.FieldValues)
	}
	if body.FieldValues[0].Field != "42" || body.FieldValues[0].Value != "Deutsch" {
		t.Errorf("fieldValues[0] = %+v, want {42 Deutsch}", body.FieldValues[0])
	}
}

func TestBuildContactDropsUnknownFieldWithWarning(t *testing.T) {
	f := &fakeAccount{fields: `{"fields":[{"id":"42","title":"Sprache"}]}`}

	core, logs := observer.New(zap.WarnLevel)
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := NewClient(Config{URL: srv.URL + "/api/3/", Token: "t"}, zap.New(core).Sugar())

	in := crmsync.Contact{
		Email:  "a@b.ch",
		Custom: map[string]string{"UnknownKey": "x"},
	}
	body, err := c.buildContact(context.Background(), in)
	if err != nil {
		t.Fatalf("buildContact: %v", err)
	}

	if len(body.FieldValues) != 0 {
		t.Errorf("fieldValues = %+v, want empty", body.FieldValues)
	}
	if logs.FilterMessage("unknown contact field ignored").Len() != 1 {
		t.Errorf("expected exactly one warning, got %d log entries", logs.Len())
	}
}

func TestBuildContactDeterministicFieldOrder(t *testing.T) {
	f := &fakeAccount{fields: `{"fields":[{"id":"1","title":"Abreise"},{"id":"2","title":"Anreise"}]}`}
	c := newFakeClient(t, f)

	in := crmsync.Contact{
		Email:  "a@b.ch",
		Custom: map[string]string{"Anreise": "2026-09-01", "Abreise": "2026-09-08"},
	}
	body, err := c.buildContact(context.Background(), in)
	if err != nil {
		t.Fatalf("buildContact: %v", err)
	}
	if len(body.FieldValues) != 2 {
		t.Fatalf("fieldValues = %+v, want two entries", body.FieldValues)
	}
	// Sorted by field title: Abreise before Anreise.
	if body.FieldValues[0].Field != "1" || body.FieldValues[1].Field != "2" {
		t.Errorf("order = %+v, want field 1 then 2", body.FieldValues)
	}
}

func TestSyncContact(t *testing.T) {
	f := &fakeAccount{fields: `{"fields":[{"id":"42","title":"Sprache"}]}`}
	c := newFakeClient(t, f)

	id, err := c.SyncContact(context.Background(), crmsync.Contact{
		Email:     "a@b.ch",
		FirstName: "A",
		Custom:    map[string]string{"Sprache": "Deutsch"},
	})
	if err != nil {
		t.Fatalf("SyncContact: %v", err)
	}
	if id != "101" {
		t.Errorf("id = %q, want 101", id)
	}

	var sent contactEnvelope
	if err := json.Unmarshal(f.syncBody, &sent); err != nil {
		t.Fatalf("decode sync body: %v", err)
	}
	if sent.Contact.Email != "a@b.ch" {
		t.Errorf("sent email = %q", sent.Contact.Email)
	}
	if len(sent.Contact.FieldValues) != 1 || sent.Contact.FieldValues[0].Field != "42" {
		t.Errorf("sent fieldValues = %+v", sent.Contact.FieldValues)
	}
}

func TestTagContact(t *testing.T) {
	f := &fakeAccount{tags: `{"tags":[{"id":"5","tag":"Newsletter"}]}`}
	c := newFakeClient(t, f)

	if err := c.TagContact(context.Background(), "Newsletter", "101"); err != nil {
		t.Fatalf("TagContact: %v", err)
	}
	if f.tagPosts != 1 {
		t.Fatalf("contactTags posts = %d, want 1", f.tagPosts)
	}

	var sent struct {
		ContactTag struct {
			Contact string `json:"contact"`
			Tag     string `json:"tag"`
		} `json:"contactTag"`
	}
	if err := json.Unmarshal(f.tagBody, &sent); err != nil {
		t.Fatalf("decode tag body: %v", err)
	}
	if sent.ContactTag.Contact != "101" || sent.ContactTag.Tag != "5" {
		t.Errorf("sent = %+v", sent.ContactTag)
	}
}

func TestTagContactUnknownTagSkipsWrite(t *testing.T) {
	f := &fakeAccount{tags: `{"tags":[]}`}
	c := newFakeClient(t, f)

	err := c.TagContact(context.Background(), "Nope", "101")
	if !errors.Is(err, crmsync.ErrTagNotFound) {
		t.Fatalf("err = %v, want ErrTagNotFound", err)
	}
	if f.tagPosts != 0 {
		t.Errorf("contactTags posts = %d, want 0", f.tagPosts)
	}
}

func TestSubscribeToList(t *testing.T) {
	f := &fakeAccount{}
	c := newFakeClient(t, f)

	if err := c.SubscribeToList(context.Background(), "3", "101"); err != nil {
		t.Fatalf("SubscribeToList: %v", err)
	}

	var sent struct {
		ContactList struct {
			List    string `json:"list"`
			Contact string `json:"contact"`
			Status  int    `json:"status"`
		} `json:"contactList"`
	}
	if err := json.Unmarshal(f.listBody, &sent); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if sent.ContactList.List != "3" || sent.ContactList.Contact != "101" || sent.ContactList.Status != 1 {
		t.Errorf("sent = %+v", sent.ContactList)
	}
}
