package source

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/PaesslerAG/jsonpath"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func readJSON(name string, data []byte, o *options) (model.ImportFile, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.ImportFile{}, invalid(name, err)
	}

	selected, err := jsonpath.Get(o.jsonRecords, doc)
	if err != nil {
		return model.ImportFile{}, invalid(name, fmt.Errorf("records %q: %w", o.jsonRecords, err))
	}
	records, ok := selected.([]any)
	if !ok {
		records = []any{selected}
	}

	lines := make([]model.TextFileLine, 0, len(records))
	for i, record := range records {
		columns, err := recordColumns(record, o.jsonColumns)
		if err != nil {
			return model.ImportFile{}, invalid(name, fmt.Errorf("record %d: %w", i, err))
		}
		text, err := json.Marshal(record)
		if err != nil {
			return model.ImportFile{}, invalid(name, err)
		}
		lines = append(lines, model.TextFileLine{Line: i, Text: string(text), Columns: columns})
	}
	return model.ImportFile{Name: name, Type: "application/json", Encoding: "utf-8", Lines: lines}, nil
}

// recordColumns evaluates the column paths on one record. Without paths the
// scalar members of an object record become the columns.
func recordColumns(record any, paths map[string]string) (map[string]string, error) {
	columns := make(map[string]string)
	if len(paths) == 0 {
		obj, ok := record.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record is %T, not an object", record)
		}
		for k, v := range obj {
			if s, ok := scalarString(v); ok {
				columns[k] = s
			}
		}
		return columns, nil
	}

	names := make([]string, 0, len(paths))
	for column := range paths {
		names = append(names, column)
	}
	sort.Strings(names)
	for _, column := range names {
		v, err := jsonpath.Get(paths[column], record)
		if err != nil {
			// A record without the member gets an empty column.
			columns[column] = ""
			continue
		}
		// Filters and wildcards give a list even for one match.
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				columns[column] = ""
				continue
			}
			v = list[0]
		}
		s, ok := scalarString(v)
		if !ok {
			return nil, fmt.Errorf("column %s: %q is not a scalar", column, paths[column])
		}
		columns[column] = s
	}
	return columns, nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
