package domain

import (
	"fmt"
	"strings"
)

// Store identifies one of the supported delivery storefronts
type Store string

const (
	// StoreLavka is the infinite-scroll storefront
	StoreLavka Store = "LAVKA"
	// StoreSamokat is the fully rendered storefront
	StoreSamokat Store = "SAMOKAT"
)

// PreferredStore wins every exact tie, both when comparing a single product
// across stores and when recommending a store for a whole basket.
const PreferredStore = StoreSamokat

// Stores lists every supported storefront in a stable order
var Stores = []Store{StoreLavka, StoreSamokat}

// DisplayName returns the human readable storefront name
func (s Store) DisplayName() string {
	switch s {
	case StoreLavka:
		return "Лавка"
	case StoreSamokat:
		return "Самокат"
	default:
		return string(s)
	}
}

// Valid reports whether s is one of the supported storefronts
func (s Store) Valid() bool {
	return s == StoreLavka || s == StoreSamokat
}

// ParseStore resolves a store name case-insensitively
func ParseStore(name string) (Store, error) {
	store := Store(strings.ToUpper(strings.TrimSpace(name)))
	if !store.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStore, name)
	}
	return store, nil
}

// ProductRecord is a single product card as scraped from a storefront,
// before it is reconciled into the catalog.
type ProductRecord struct {
	Reference   string `json:"reference"` // detail page link, stable across runs
	Title       string `json:"title"`
	RawOldPrice string `json:"rawOldPrice,omitempty"`
	RawNewPrice string `json:"rawNewPrice,omitempty"`
	Volume      string `json:"volume,omitempty"`
	Store       Store  `json:"store"`
}
