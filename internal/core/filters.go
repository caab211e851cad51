package core

import (
	"fmt"
	"strings"
)

// Queryable fields of an extraction. Scalar fields hold one value, the tag
// field holds the full tag list.
const (
	FieldLanguage = "language"
	FieldModel    = "model"
	FieldText     = "text"
	FieldTag      = "tag"
)

// TagRecord is the view of a stored extraction that filters match against.
type TagRecord struct {
	Language string
	Model    string
	Text     string
	Tags     []string
}

func (r TagRecord) values(field string) []string {
	switch field {
	case FieldLanguage:
		return []string{r.Language}
	case FieldModel:
		return []string{r.Model}
	case FieldText:
		return []string{r.Text}
	case FieldTag:
		return r.Tags
	default:
		return nil
	}
}

func canonicalField(name string) (string, error) {
	switch strings.ToLower(name) {
	case "language", "lang":
		return FieldLanguage, nil
	case "model":
		return FieldModel, nil
	case "text":
		return FieldText, nil
	case "tag", "tags":
		return FieldTag, nil
	default:
		return "", fmt.Errorf("unknown field '%s': expected one of language, model, text, tag", name)
	}
}

type Filter interface {
	Matches(record TagRecord) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(record TagRecord) bool {
	for _, filter := range f.filters {
		if !filter.Matches(record) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(record TagRecord) bool {
	for _, filter := range f.filters {
		if filter.Matches(record) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(record TagRecord) bool {
	return !f.filter.Matches(record)
}

type CountFilter struct {
	field string
	min   int
	max   int
}

func (f *CountFilter) Matches(record TagRecord) bool {
	count := len(record.values(f.field))
	return f.min < count && count < f.max
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(record TagRecord) bool {
	for _, value := range record.values(f.field) {
		if strings.Contains(value, f.substr) {
			return true
		}
	}
	return false
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(record TagRecord) bool {
	for _, value := range record.values(f.field) {
		if value == f.value {
			return true
		}
	}
	return false
}

type StringLtFilter struct {
	field string
	value string
}

func (f *StringLtFilter) Matches(record TagRecord) bool {
	for _, value := range record.values(f.field) {
		if value < f.value {
			return true
		}
	}
	return false
}

type StringGtFilter struct {
	field string
	value string
}

func (f *StringGtFilter) Matches(record TagRecord) bool {
	for _, value := range record.values(f.field) {
		if value > f.value {
			return true
		}
	}
	return false
}
