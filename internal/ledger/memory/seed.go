package memory

import (
	"strings"

	"fincast/internal/core"

	"gopkg.in/yaml.v3"
)

type seedDocument struct {
	Settings       core.JurisdictionSettings `yaml:"settings"`
	Categories     []core.CategoryRef        `yaml:"categories"`
	Transactions   []seedTransaction         `yaml:"transactions"`
	RecurringRules []seedRule                `yaml:"recurring_rules"`
}

type seedTransaction struct {
	ID       string       `yaml:"id"`
	Date     string       `yaml:"date"`
	Amount   string       `yaml:"amount"`
	Type     string       `yaml:"type"`
	Category seedCategory `yaml:"category"`
}

type seedRule struct {
	ID          string       `yaml:"id"`
	Description string       `yaml:"description"`
	Amount      string       `yaml:"amount"`
	StartDate   string       `yaml:"start_date"`
	Frequency   string       `yaml:"frequency"`
	Type        string       `yaml:"type"`
	Category    seedCategory `yaml:"category"`
	Active      *bool        `yaml:"active"`
}

// seedCategory accepts either a bare category id or an inline category mapping.
type seedCategory struct {
	link core.CategoryLink
}

func (c *seedCategory) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		c.link = core.LinkByID(node.Value)
		return nil
	case yaml.MappingNode:
		var ref core.CategoryRef
		if err := node.Decode(&ref); err != nil {
			return err
		}
		c.link = core.LinkByRef(ref)
		return nil
	default:
		c.link = core.CategoryLink{}
		return nil
	}
}

// toTransaction converts a seed row. Rows with an unparseable amount or date
// are rejected; an empty date is kept so aggregation can count it.
func (r seedTransaction) toTransaction() (core.Transaction, bool) {
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return core.Transaction{}, false
	}
	var date core.Date
	if strings.TrimSpace(r.Date) != "" {
		if date, err = core.ParseDate(r.Date); err != nil {
			return core.Transaction{}, false
		}
	}
	return core.Transaction{
		ID:       strings.TrimSpace(r.ID),
		Date:     date,
		Amount:   amount,
		Type:     core.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Category: r.Category.link,
	}, true
}

func (r seedRule) toRule() (core.RecurringRule, bool) {
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return core.RecurringRule{}, false
	}
	start, err := core.ParseDate(r.StartDate)
	if err != nil {
		return core.RecurringRule{}, false
	}
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return core.RecurringRule{
		ID:          strings.TrimSpace(r.ID),
		Description: strings.TrimSpace(r.Description),
		Amount:      amount,
		StartDate:   start,
		Frequency:   core.Frequency(strings.ToLower(strings.TrimSpace(r.Frequency))),
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(r.Type))),
		Category:    r.Category.link,
		Active:      active,
	}, true
}
