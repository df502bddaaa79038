package sequence

import (
	"fmt"
	"sort"
	"strings"
)

type Category string

const (
	CategoryAppointment = Category("appointment")
	CategoryAdmission   = Category("admission")
	CategorySupervision = Category("supervision")
	CategoryGeneral     = Category("general")
)

const (
	PrefixAppointment = "BES"
	PrefixAdmission   = "ZUL"
	PrefixSupervision = "AUF"
	PrefixGeneral     = "ALL"
)

// PrefixCatalog maps case-number prefixes to their category.
type PrefixCatalog struct {
	categories map[string]Category
}

func NewPrefixCatalog(entries map[string]Category) (*PrefixCatalog, error) {
	c := &PrefixCatalog{categories: map[string]Category{}}
	for prefix, category := range entries {
		if prefix == "" || prefix != strings.ToUpper(strings.TrimSpace(prefix)) || len(prefix) > 16 {
			return nil, fmt.Errorf("invalid case number prefix %q", prefix)
		}
		c.categories[prefix] = category
	}
	return c, nil
}

func DefaultPrefixCatalog() *PrefixCatalog {
	c, err := NewPrefixCatalog(map[string]Category{
		PrefixAppointment: CategoryAppointment,
		PrefixAdmission:   CategoryAdmission,
		PrefixSupervision: CategorySupervision,
		PrefixGeneral:     CategoryGeneral,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (c *PrefixCatalog) Lookup(prefix string) (Category, bool) {
	category, found := c.categories[prefix]
	return category, found
}

// Prefixes returns all registered prefixes in alphabetical order.
func (c *PrefixCatalog) Prefixes() []string {
	r := make([]string, 0, len(c.categories))
	for prefix := range c.categories {
		r = append(r, prefix)
	}
	sort.Strings(r)
	return r
}
