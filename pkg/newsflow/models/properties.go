package models

import (
	"strconv"
	"strings"
)

// Property is a single ordered key/value pair. A key may repeat to express a
// multi-valued property.
type Property struct {
	Key   string `json:"key" toml:"key" validate:"required"`
	Value string `json:"value" toml:"value"`
}

// Properties is the reconstructed key -> values view of an ordered list of
// Property pairs. Values keep the order they were declared in.
type Properties map[string][]string

func PropertiesFrom(pairs []Property) Properties {
	p := make(Properties, len(pairs))
	for _, pair := range pairs {
		p[pair.Key] = append(p[pair.Key], pair.Value)
	}
	return p
}

// Get returns the first value for key, or "".
func (p Properties) Get(key string) string {
	if vals := p[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// GetOr returns the first value for key, or def when the key is missing or blank.
func (p Properties) GetOr(key, def string) string {
	if v := strings.TrimSpace(p.Get(key)); v != "" {
		return v
	}
	return def
}

func (p Properties) All(key string) []string {
	return p[key]
}

func (p Properties) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Properties) Int64(key string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(p.Get(key)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p Properties) Bool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(p.Get(key)))
	return err == nil && v
}
