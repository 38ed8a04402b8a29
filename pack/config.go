package pack

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk description of the catalog and its prices.
//
//	packs: [gamer, date, party]
//	prices:
//	  gamer: price_1Nabc
//	  bundle: price_1Nxyz
//	  subscription: price_1Nsub
type Config struct {
	Packs  []string          `json:"packs" mapstructure:"packs" yaml:"packs"`
	Prices map[string]string `json:"prices" mapstructure:"prices" yaml:"prices"`
}

// ParseConfig decodes a YAML catalog description.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("pack: decode catalog: %w", err)
	}
	return cfg, nil
}

// Resolver builds a Resolver from the configuration.
func (c Config) Resolver() (*Resolver, error) {
	catalog := make([]ID, 0, len(c.Packs))
	for _, p := range c.Packs {
		catalog = append(catalog, ID(p))
	}
	prices := make(map[ID]string, len(c.Prices))
	for p, price := range c.Prices {
		prices[ID(p)] = price
	}
	return NewResolver(catalog, prices)
}
