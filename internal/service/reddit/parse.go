package reddit

import (
	"encoding/json"
	"strings"
)

// The submit endpoint answers in several shapes depending on API
// vintage and post kind. Parsing is an ordered list of strategies
// tried in sequence; the inconsistency is the upstream's, not ours.
type parseStrategy func(map[string]any) (SubmitResult, bool)

var submitStrategies = []parseStrategy{
	parseNestedData,
	parseFlatFields,
	parseKeyScan,
}

func parseSubmitResponse(body []byte) (*SubmitResult, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	for _, strategy := range submitStrategies {
		if res, ok := strategy(doc); ok {
			return &res, true
		}
	}
	return nil, false
}

// submitErrorRows pulls the json.errors array out of a 2xx submit
// response; the upstream signals some failures that way.
func submitErrorRows(body []byte) string {
	var doc struct {
		JSON struct {
			Errors [][]any `json:"errors"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return joinErrorRows(doc.JSON.Errors)
}

// parseNestedData handles the common shape: {"json":{"data":{"id":…,
// "name":…,"url":…}}}.
func parseNestedData(doc map[string]any) (SubmitResult, bool) {
	inner, ok := doc["json"].(map[string]any)
	if !ok {
		return SubmitResult{}, false
	}
	data, ok := inner["data"].(map[string]any)
	if !ok {
		return SubmitResult{}, false
	}
	return resultFromFields(data)
}

// parseFlatFields handles responses that put id/name/permalink at the
// top level.
func parseFlatFields(doc map[string]any) (SubmitResult, bool) {
	return resultFromFields(doc)
}

// parseKeyScan is the fallback heuristic: walk the whole document for
// anything that looks like a post id.
func parseKeyScan(doc map[string]any) (SubmitResult, bool) {
	var res SubmitResult
	scanForID(doc, &res)
	if res.PostID == "" {
		return SubmitResult{}, false
	}
	return res, true
}

func resultFromFields(m map[string]any) (SubmitResult, bool) {
	id := stringField(m, "id")
	if id == "" {
		id = normalizeThingID(stringField(m, "name"))
	}
	if id == "" {
		return SubmitResult{}, false
	}
	link := stringField(m, "permalink")
	if link == "" {
		link = stringField(m, "url")
	}
	return SubmitResult{PostID: id, Permalink: link}, true
}

func scanForID(v any, res *SubmitResult) {
	switch node := v.(type) {
	case map[string]any:
		for key, val := range node {
			switch key {
			case "id":
				if s, ok := val.(string); ok && res.PostID == "" {
					res.PostID = s
				}
			case "name":
				if s, ok := val.(string); ok && res.PostID == "" && strings.HasPrefix(s, "t3_") {
					res.PostID = normalizeThingID(s)
				}
			case "permalink", "url":
				if s, ok := val.(string); ok && res.Permalink == "" {
					res.Permalink = s
				}
			}
			scanForID(val, res)
		}
	case []any:
		for _, item := range node {
			scanForID(item, res)
		}
	}
}

// normalizeThingID strips the t3_ fullname prefix so ids are stored in
// one form regardless of which response shape produced them.
func normalizeThingID(name string) string {
	return strings.TrimPrefix(name, "t3_")
}
