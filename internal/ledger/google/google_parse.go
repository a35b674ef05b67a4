package google

import (
	"fmt"
	"strconv"
	"strings"

	"fincast/internal/core"
	ports "fincast/internal/ledger"
)

// header maps lower-cased column names to their index in the first row.
type header map[string]int

func parseHeader(values [][]interface{}, required ...string) (header, error) {
	if len(values) == 0 {
		return header{}, nil
	}
	h := header{}
	for i, name := range toStrings(values[0]) {
		h[strings.ToLower(name)] = i
	}
	var missing []string
	for _, r := range required {
		if _, ok := h[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), toStrings(values[0]))
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	idx, ok := h[col]
	if !ok {
		return ""
	}
	return safeGet(row, idx)
}

// parseTransactions reads a sheet with columns ID, Date, Amount, Type and an
// optional Category holding a category id. Rows whose amount or date cannot
// be parsed are skipped and counted; rows with an empty date are kept.
func parseTransactions(values [][]interface{}) ([]core.Transaction, int, error) {
	h, err := parseHeader(values, "date", "amount", "type")
	if err != nil {
		return nil, 0, err
	}
	var out []core.Transaction
	skipped := 0
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		amount, err := core.ParseAmount(h.get(row, "amount"))
		if err != nil {
			skipped++
			continue
		}
		var date core.Date
		if raw := h.get(row, "date"); raw != "" {
			if date, err = core.ParseDate(raw); err != nil {
				skipped++
				continue
			}
		}
		id := h.get(row, "id")
		if id == "" {
			id = "row:" + strconv.Itoa(i+1)
		}
		out = append(out, core.Transaction{
			ID:       id,
			Date:     date,
			Amount:   amount,
			Type:     core.TransactionType(strings.ToLower(h.get(row, "type"))),
			Category: core.LinkByID(h.get(row, "category")),
		})
	}
	return out, skipped, nil
}

// parseCategories reads ID, Name and optional Color and Type columns.
func parseCategories(values [][]interface{}) ([]core.CategoryRef, error) {
	h, err := parseHeader(values, "id", "name")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []core.CategoryRef
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		id := h.get(row, "id")
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, core.CategoryRef{
			ID:    id,
			Name:  h.get(row, "name"),
			Color: h.get(row, "color"),
			Type:  core.TransactionType(strings.ToLower(h.get(row, "type"))),
		})
	}
	return out, nil
}

// parseRules reads ID, Description, Amount, Start Date, Frequency, Type and
// optional Category and Active columns. Active defaults to true.
func parseRules(values [][]interface{}) ([]core.RecurringRule, int, error) {
	h, err := parseHeader(values, "id", "description", "amount", "start date", "frequency", "type")
	if err != nil {
		return nil, 0, err
	}
	var out []core.RecurringRule
	skipped := 0
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		amount, err := core.ParseAmount(h.get(row, "amount"))
		if err != nil {
			skipped++
			continue
		}
		start, err := core.ParseDate(h.get(row, "start date"))
		if err != nil {
			skipped++
			continue
		}
		out = append(out, core.RecurringRule{
			ID:          h.get(row, "id"),
			Description: h.get(row, "description"),
			Amount:      amount,
			StartDate:   start,
			Frequency:   core.Frequency(strings.ToLower(h.get(row, "frequency"))),
			Type:        core.TransactionType(strings.ToLower(h.get(row, "type"))),
			Category:    core.LinkByID(h.get(row, "category")),
			Active:      parseActive(h.get(row, "active")),
		})
	}
	return out, skipped, nil
}

// parseSettings reads key/value rows (country_code, currency_code) from the
// first two columns, falling back to the default settings per key.
func parseSettings(values [][]interface{}) core.JurisdictionSettings {
	s := ports.DefaultSettings
	for _, raw := range values {
		row := toStrings(raw)
		key := strings.ToLower(safeGet(row, 0))
		val := strings.ToUpper(safeGet(row, 1))
		if val == "" {
			continue
		}
		switch key {
		case "country_code", "country":
			s.CountryCode = val
		case "currency_code", "currency":
			s.CurrencyCode = val
		}
	}
	return s
}

func parseActive(s string) bool {
	switch strings.ToLower(s) {
	case "false", "no", "0", "n":
		return false
	}
	return true
}

// toStrings renders cells as text. Unformatted numeric cells arrive as
// float64 and are written without an exponent so large amounts still parse.
func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
