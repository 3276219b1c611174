package importer

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

// itemArrayPaths are tried in order to locate the item list inside a dump.
var itemArrayPaths = []string{"data.items", "items", "@this"}

// ImportJSON imports items from a JSON price dump on disk.
func ImportJSON(path string) ImportResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open file: %v", err)}}
	}
	return ImportJSONBytes(data)
}

// ImportJSONBytes imports items from a JSON document. It accepts a bare
// array, {"items": [...]} and the {"data": {"items": [...]}} shape of market
// API exports.
func ImportJSONBytes(data []byte) ImportResult {
	result := ImportResult{}

	if !gjson.ValidBytes(data) {
		result.Errors = append(result.Errors, "Invalid JSON document")
		return result
	}

	var list gjson.Result
	for _, p := range itemArrayPaths {
		if r := gjson.GetBytes(data, p); r.IsArray() {
			list = r
			break
		}
	}
	if !list.Exists() {
		result.Errors = append(result.Errors, "No item array found")
		return result
	}

	var stacks []item.Stack
	pos := 0
	list.ForEach(func(_, v gjson.Result) bool {
		pos++
		label := fmt.Sprintf("Entry %d", pos)

		value := firstOf(v, "value", "basePrice", "base_price")
		if !value.Exists() {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Missing value", label))
			return true
		}

		it := item.Item{
			ID:     firstOf(v, "id", "uid").String(),
			Name:   firstOf(v, "name", "shortName", "short_name").String(),
			Value:  value.Int(),
			Cost:   firstOf(v, "cost", "avg24hPrice", "lastLowPrice", "price").Int(),
			Width:  int(v.Get("width").Int()),
			Height: int(v.Get("height").Int()),
		}
		if it.ID == "" {
			it.ID = item.NewID()
		}
		if err := it.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", label, err))
			return true
		}

		count := 1
		if c := firstOf(v, "count", "quantity"); c.Exists() {
			count = int(c.Int())
		}
		if count <= 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Count is %d, skipping", label, count))
			return true
		}

		stacks = append(stacks, item.Stack{Item: it.Normalize(), Count: count})
		return true
	})

	result.Items = item.Expand(stacks)
	return result
}

// firstOf returns the first present, non-null field among keys.
func firstOf(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}
