// Package catalog holds the voucher products sold through the checkout.
// The catalog is a JSON file maintained by the marketing team; it is read
// once at startup.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Product is one sellable voucher.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle"`
	Image    string  `json:"image"`
	Price    int     `json:"price"` // CHF
	Active   bool    `json:"active"`
	Details  Details `json:"details"`
}

// Details carries the template data shown on confirmation mails.
type Details struct {
	Services []string `json:"services"`
}

// Catalog is the active subset of the product file.
type Catalog struct {
	products []Product
}

// Load reads the product file and keeps only active entries.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Catalog from raw JSON, keeping only active entries.
func Parse(raw []byte) (*Catalog, error) {
	var all []Product
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	c := &Catalog{}
	for _, p := range all {
		if p.Active {
			c.products = append(c.products, p)
		}
	}
	return c, nil
}

// Products returns the active products in file order.
func (c *Catalog) Products() []Product {
	return c.products
}

// ByID returns the active product with the given id.
func (c *Catalog) ByID(id string) (Product, bool) {
	for _, p := range c.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
