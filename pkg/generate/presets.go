package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/schema"
)

// Counts maps a table name to the number of rows requested for it.
type Counts map[string]int

// Presets are the named scale configurations.
var Presets = map[string]Counts{
	"xs": {
		schema.Orgs: 20, schema.Users: 100, schema.Products: 10,
		schema.Orders: 500, schema.Payments: 200, schema.Events: 1_000,
	},
	"s": {
		schema.Orgs: 1_000, schema.Users: 10_000, schema.Products: 500,
		schema.Orders: 100_000, schema.Payments: 40_000, schema.Events: 300_000,
	},
	"m": {
		schema.Orgs: 5_000, schema.Users: 50_000, schema.Products: 1_000,
		schema.Orders: 1_000_000, schema.Payments: 400_000, schema.Events: 3_000_000,
	},
	"l": {
		schema.Orgs: 25_000, schema.Users: 250_000, schema.Products: 2_000,
		schema.Orders: 5_000_000, schema.Payments: 2_000_000, schema.Events: 15_000_000,
	},
}

// PresetNames returns the preset names from smallest to largest.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return Presets[names[i]].Total() < Presets[names[j]].Total()
	})
	return names
}

// ResolveCounts returns the row counts of a preset with per-table overrides applied.
// An empty scale is only valid when every table is overridden.
func ResolveCounts(scale string, overrides map[string]int) (Counts, error) {
	counts := Counts{}
	if scale != "" {
		preset, ok := Presets[strings.ToLower(scale)]
		if !ok {
			return nil, &core.ConfigError{
				Field:   "scale",
				Value:   scale,
				Message: fmt.Sprintf("unknown preset, expected one of %s", strings.Join(PresetNames(), ", ")),
			}
		}
		for k, v := range preset {
			counts[k] = v
		}
	}

	for table, n := range overrides {
		if _, err := schema.Lookup(table); err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, &core.ConfigError{Field: "overrides." + table, Value: n, Message: "count must not be negative"}
		}
		counts[table] = n
	}

	for _, table := range schema.Names() {
		if _, ok := counts[table]; !ok {
			return nil, &core.ConfigError{Field: "overrides." + table, Message: "no count for table and no scale preset given"}
		}
	}
	return counts, nil
}

// Total returns the number of requested rows across all tables.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
