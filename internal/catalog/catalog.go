package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProduct is returned when a checkout names a product the catalog does not carry.
var ErrUnknownProduct = errors.New("catalog: unknown product")

// FallbackName is used for conversion reporting when the product key is not recognised.
const FallbackName = "AI Sidekick Starter Kit"

const (
	defaultCurrency    = "USD"
	defaultSuccessPath = "/success"
)

// Product describes a purchasable offering and where the hosted checkout sends the buyer back to.
type Product struct {
	Key         string  `yaml:"key" json:"key" validate:"required,lowercase,max=32"`
	Name        string  `yaml:"name" json:"name" validate:"required,max=120"`
	PriceID     string  `yaml:"price_id" json:"-"`
	Value       float64 `yaml:"value" json:"value" validate:"gte=0"`
	Currency    string  `yaml:"currency" json:"currency" validate:"omitempty,len=3"`
	SuccessPath string  `yaml:"success_path" json:"-" validate:"omitempty,startswith=/"`
	CancelPath  string  `yaml:"cancel_path" json:"-" validate:"omitempty,startswith=/"`
}

// Catalog is an immutable set of products keyed by lowercase key.
type Catalog struct {
	products   map[string]Product
	defaultKey string
}

// Builtin returns the products sold on the site, priced with the supplied Stripe price ids.
func Builtin(priceIDs map[string]string) []Product {
	return []Product{
		{Key: "sprint", Name: "Executive AI Fluency Sprint", PriceID: priceIDs["sprint"], Value: 1499, CancelPath: "/story"},
		{Key: "solo", Name: "Sidekick Solo", PriceID: priceIDs["solo"], Value: 99, CancelPath: "/sidekick"},
		{Key: "plus", Name: "Sidekick Plus", PriceID: priceIDs["plus"], Value: 149, CancelPath: "/sidekick"},
		{Key: "family", Name: "Family Pack", PriceID: priceIDs["family"], Value: 249, CancelPath: "/sidekick"},
	}
}

// New builds a catalog from the provided products. Later entries override earlier ones with the same key.
func New(defaultKey string, products ...Product) (*Catalog, error) {
	validate := validator.New()
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		p = normalise(p)
		if err := validate.Struct(p); err != nil {
			return nil, fmt.Errorf("catalog: product %q: %w", p.Key, err)
		}
		c.products[p.Key] = p
	}
	c.defaultKey = strings.ToLower(strings.TrimSpace(defaultKey))
	if _, ok := c.products[c.defaultKey]; !ok {
		return nil, fmt.Errorf("catalog: default product %q: %w", defaultKey, ErrUnknownProduct)
	}
	return c, nil
}

type fileCatalog struct {
	Products []Product `yaml:"products"`
}

// LoadFile reads product overrides from a YAML document of the form
//
//	products:
//	  - key: solo
//	    name: Sidekick Solo
//	    price_id: price_123
//	    value: 99
func LoadFile(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return doc.Products, nil
}

// Lookup resolves a product key. An empty key selects the default product.
func (c *Catalog) Lookup(key string) (Product, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = c.defaultKey
	}
	p, ok := c.products[key]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownProduct, key)
	}
	return p, nil
}

// Default returns the product used when a checkout names none.
func (c *Catalog) Default() Product {
	return c.products[c.defaultKey]
}

// Describe returns the display name and value for a key, falling back to the
// generic starter kit entry with zero value for unknown keys.
func (c *Catalog) Describe(key string) (string, float64) {
	if c != nil {
		if p, ok := c.products[strings.ToLower(strings.TrimSpace(key))]; ok {
			return p.Name, p.Value
		}
	}
	return FallbackName, 0
}

// Keys lists the product keys in lexical order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.products))
	for k := range c.products {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalise(p Product) Product {
	p.Key = strings.ToLower(strings.TrimSpace(p.Key))
	p.Name = strings.TrimSpace(p.Name)
	p.PriceID = strings.TrimSpace(p.PriceID)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	if p.SuccessPath == "" {
		p.SuccessPath = defaultSuccessPath
	}
	if p.CancelPath == "" {
		p.CancelPath = "/"
	}
	return p
}
