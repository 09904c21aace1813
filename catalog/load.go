package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/affiliate/types"
)

// file is the YAML document layout.
type file struct {
	Currency string        `yaml:"currency"`
	Products []productSpec `yaml:"products"`
}

type productSpec struct {
	Slug         string   `yaml:"slug"`
	Name         string   `yaml:"name"`
	Price        decimal  `yaml:"price"`
	Currency     string   `yaml:"currency"`
	Recurring    bool     `yaml:"recurring"`
	TrialDays    int      `yaml:"trial_days"`
	RebillDays   int      `yaml:"rebill_days"`
	RebillPrice  decimal  `yaml:"rebill_price"`
	ProviderIDs  []string `yaml:"provider_ids"`
	GrantedBy    []string `yaml:"granted_by"`
	Level        string   `yaml:"level"`
	Rank         int      `yaml:"rank"`
	NoAccessPath string   `yaml:"no_access_path"`
}

// decimal keeps the literal scalar text so amounts parse exactly.
type decimal string

func (d *decimal) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", n.Line)
	}
	*d = decimal(n.Value)
	return nil
}

func (d decimal) money(currency string) (types.Money, error) {
	if d == "" {
		return types.Zero(currency), nil
	}
	return types.ParseMoney(string(d), currency)
}

// Load decodes a YAML catalog from r and validates it.
func Load(r io.Reader) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	products := make([]*Product, 0, len(f.Products))
	for _, s := range f.Products {
		currency := s.Currency
		if currency == "" {
			currency = f.Currency
		}
		price, err := s.Price.money(currency)
		if err != nil {
			return nil, fmt.Errorf("catalog: product %q price: %w", s.Slug, err)
		}
		rebill, err := s.RebillPrice.money(currency)
		if err != nil {
			return nil, fmt.Errorf("catalog: product %q rebill_price: %w", s.Slug, err)
		}
		products = append(products, &Product{
			Slug:         s.Slug,
			Name:         s.Name,
			Price:        price,
			Recurring:    s.Recurring,
			TrialDays:    s.TrialDays,
			RebillDays:   s.RebillDays,
			RebillPrice:  rebill,
			ProviderIDs:  s.ProviderIDs,
			GrantedBy:    s.GrantedBy,
			Level:        s.Level,
			Rank:         s.Rank,
			NoAccessPath: s.NoAccessPath,
		})
	}
	return New(products...)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}
