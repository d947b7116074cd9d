package campaigns

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// decodeRecords accepts the single-object or array output ConvertTo-Json
// produces and lowercases every key.
func decodeRecords(raw string) ([]map[string]any, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if raw == "" || raw == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode module output: %w", err)
	}

	var items []any
	switch v := parsed.(type) {
	case map[string]any:
		items = []any{v}
	case []any:
		items = v
	default:
		return nil, fmt.Errorf("decode module output: unexpected %T", parsed)
	}

	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		lowered := make(map[string]any, len(obj))
		for key, value := range obj {
			lowered[strings.ToLower(key)] = value
		}
		records = append(records, lowered)
	}
	return records, nil
}

// ParseCampaigns normalizes the query output into campaigns.
func ParseCampaigns(raw string) ([]Campaign, error) {
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Campaign, 0, len(records))
	for _, rec := range records {
		name := scalarText(rec["name"])
		c := Campaign{
			ID:    scalarText(rec["id"]),
			Name:  name,
			State: enumText(rec["state"], stateNames),
			Type:  enumText(rec["type"], typeNames),
		}
		if c.ID == "" {
			c.ID = name
		}
		out = append(out, c)
	}
	return out, nil
}

type actionRecord struct {
	name    string
	success bool
	message string
}

func parseActionRecords(raw string) ([]actionRecord, error) {
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	out := make([]actionRecord, 0, len(records))
	for _, rec := range records {
		success := truthy(rec["success"])
		message := scalarText(rec["error"])
		for _, name := range recordNames(rec["name"]) {
			out = append(out, actionRecord{name: name, success: success, message: message})
		}
	}
	return out, nil
}

// recordNames flattens a Name that was serialized as a list into one name per
// element. Nested or non-scalar elements are dropped so they never match a
// requested campaign.
func recordNames(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if _, nested := v.(map[string]any); nested {
			return nil
		}
		return []string{scalarText(v)}
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		switch item.(type) {
		case []any, map[string]any:
			continue
		}
		if name := scalarText(item); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// enumText maps integer codes through names and leaves text untouched.
// Unknown integers render as their decimal text.
func enumText(v any, names map[int64]string) string {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			if name, ok := names[i]; ok {
				return name
			}
			return n.String()
		}
		return n.String()
	}
	return scalarText(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case json.Number:
		return t.String() != "0"
	default:
		return false
	}
}
