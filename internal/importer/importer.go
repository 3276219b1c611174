// Package importer reads item price lists from CSV, Excel and JSON files.
// Columns are matched case-insensitively against known aliases; rows with a
// count are expanded into repeated items.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

// ImportResult holds the results of an import operation.
type ImportResult struct {
	Items    []item.Item
	Errors   []string
	Warnings []string
}

// OK reports whether the import produced items without errors.
func (r ImportResult) OK() bool {
	return len(r.Errors) == 0 && len(r.Items) > 0
}

// ColumnMapping maps semantic column roles to their indices in the data.
type ColumnMapping struct {
	ID     int
	Name   int
	Value  int
	Cost   int
	Width  int
	Height int
	Count  int
}

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	"id":     {"id", "item id", "uid"},
	"name":   {"name", "label", "item", "item name", "short name", "shortname"},
	"value":  {"value", "base", "base price", "baseprice", "base value", "sacrifice value"},
	"cost":   {"cost", "price", "avg24hprice", "avg price", "market", "market price", "flea"},
	"width":  {"width", "w"},
	"height": {"height", "h"},
	"count":  {"count", "qty", "quantity", "amount", "pcs"},
}

// DetectCSVDelimiter picks the delimiter producing the most consistent
// multi-column rows among comma, semicolon, tab and pipe.
func DetectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	bestDelimiter := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) < 1 {
			continue
		}

		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}

		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}

		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

// DetectColumns examines a header row and returns a ColumnMapping. When the
// row is not a header it returns the positional mapping
// name, value, cost, width, height, count and false.
func DetectColumns(row []string) (ColumnMapping, bool) {
	mapping := ColumnMapping{ID: -1, Name: -1, Value: -1, Cost: -1, Width: -1, Height: -1, Count: -1}
	roles := map[string]*int{
		"id":     &mapping.ID,
		"name":   &mapping.Name,
		"value":  &mapping.Value,
		"cost":   &mapping.Cost,
		"width":  &mapping.Width,
		"height": &mapping.Height,
		"count":  &mapping.Count,
	}

	isHeader := false
	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized == alias && *roles[role] == -1 {
					*roles[role] = i
					isHeader = true
				}
			}
		}
	}

	if !isHeader {
		return ColumnMapping{ID: -1, Name: 0, Value: 1, Cost: 2, Width: 3, Height: 4, Count: 5}, false
	}
	return mapping, true
}

func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseAmount accepts plain integers as well as "12 345", "12,345" and "₽12345".
func parseAmount(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ',', '_', '₽', '$', '€', '\u00a0':
			return -1
		}
		return r
	}, raw)
	if v, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func parseOptionalInt(row []string, idx int, rowLabel, column string, fallback int) (int, string) {
	raw := getCell(row, idx)
	if raw == "" {
		return fallback, ""
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Sprintf("%s: Invalid %s '%s'", rowLabel, column, raw)
	}
	return v, ""
}

// parseRow extracts a counted item from a row using the given column mapping.
func parseRow(row []string, mapping ColumnMapping, rowLabel string) (item.Stack, string) {
	it := item.Item{
		ID:   getCell(row, mapping.ID),
		Name: getCell(row, mapping.Name),
	}
	if it.ID == "" {
		it.ID = item.NewID()
	}

	valueStr := getCell(row, mapping.Value)
	if valueStr == "" {
		return item.Stack{}, fmt.Sprintf("%s: Missing value", rowLabel)
	}
	value, err := parseAmount(valueStr)
	if err != nil {
		return item.Stack{}, fmt.Sprintf("%s: Invalid value '%s'", rowLabel, valueStr)
	}
	it.Value = value

	if costStr := getCell(row, mapping.Cost); costStr != "" {
		cost, err := parseAmount(costStr)
		if err != nil {
			return item.Stack{}, fmt.Sprintf("%s: Invalid cost '%s'", rowLabel, costStr)
		}
		it.Cost = cost
	}

	var msg string
	if it.Width, msg = parseOptionalInt(row, mapping.Width, rowLabel, "width", 1); msg != "" {
		return item.Stack{}, msg
	}
	if it.Height, msg = parseOptionalInt(row, mapping.Height, rowLabel, "height", 1); msg != "" {
		return item.Stack{}, msg
	}
	count, msg := parseOptionalInt(row, mapping.Count, rowLabel, "count", 1)
	if msg != "" {
		return item.Stack{}, msg
	}

	if err := it.Validate(); err != nil {
		return item.Stack{}, fmt.Sprintf("%s: %v", rowLabel, err)
	}
	return item.Stack{Item: it.Normalize(), Count: count}, ""
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportFile dispatches on the file extension.
func ImportFile(path string) ImportResult {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ImportExcel(path)
	case ".json":
		return ImportJSON(path)
	default:
		return ImportCSV(path)
	}
}

// ImportCSV imports items from a CSV file, detecting the delimiter.
func ImportCSV(path string) ImportResult {
	result := ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open file: %v", err))
		return result
	}

	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	delimiter := DetectCSVDelimiter(data)
	var warnings []string
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		warnings = append(warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	result = ImportCSVFromReader(bytes.NewReader(data), delimiter)
	result.Warnings = append(warnings, result.Warnings...)
	return result
}

// ImportCSVFromReader imports items from a CSV reader with a known delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune) ImportResult {
	result := ImportResult{}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line")
}

// ImportExcel imports items from the first sheet of an Excel workbook.
func ImportExcel(path string) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read Excel data: %v", err))
		return result
	}

	return importFromRows(rows, "Row")
}

// importFromRows is the shared import logic for CSV and Excel data.
func importFromRows(rows [][]string, rowPrefix string) ImportResult {
	result := ImportResult{}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1
		if mapping.Value == -1 {
			result.Errors = append(result.Errors, "Required column not found in header: Value")
			return result
		}
	} else if len(rows[0]) >= 2 {
		if _, err := parseAmount(strings.TrimSpace(rows[0][1])); err != nil {
			startRow = 1
			result.Warnings = append(result.Warnings, "Unrecognised header row, using positional columns")
		}
	}

	var stacks []item.Stack
	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)
		stack, errMsg := parseRow(row, mapping, rowLabel)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		if stack.Count == 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: Count is zero, skipping", rowLabel))
			continue
		}
		stacks = append(stacks, stack)
	}

	result.Items = item.Expand(stacks)
	return result
}
