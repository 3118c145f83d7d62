package checkout

import (
	"testing"

	"github.com/stripe/stripe-go/v76"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{50000, "CHF 500.00"},
		{3550, "CHF 35.50"},
		{1, "CHF 0.01"},
		{0, "CHF 0.00"},
	}
	for _, tt := range tests {
		if got := amount("CHF", tt.cents); got != tt.want {
			t.Errorf("amount(CHF, %d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestVatShare(t *testing.T) {
	// 7.7% VAT contained in CHF 500.00 gross is CHF 35.75.
	if got := vatShare("CHF", 50000); got != "CHF 35.75" {
		t.Errorf("vatShare(CHF, 50000) = %q, want CHF 35.75", got)
	}
}

func TestBillingMap(t *testing.T) {
	m := billingMap("A B", "a@b.ch", "+41790000000", &stripe.Address{
		Line1:      "Dorfstrasse 1",
		PostalCode: "3954",
		City:       "Leukerbad",
		Country:    "CH",
	})

	if m["name"] != "A B" || m["email"] != "a@b.ch" {
		t.Errorf("billingMap = %+v", m)
	}
	addr, ok := m["address"].(map[string]interface{})
	if !ok {
		t.Fatalf("address missing: %+v", m)
	}
	if addr["city"] != "Leukerbad" || addr["country"] != "CH" {
		t.Errorf("address = %+v", addr)
	}
}

func TestBillingMapNoAddress(t *testing.T) {
	m := billingMap("A B", "a@b.ch", "", nil)
	if _, ok := m["address"]; ok {
		t.Errorf("address present for nil input: %+v", m)
	}
}
