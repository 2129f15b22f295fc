package intake

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	dateType    = reflect.TypeOf(Date{})
	answerType  = reflect.TypeOf(Answer(""))
)

// conformApplication checks every value in a canonical payload against the
// Go type it decodes into. Values the decoder would reject are dropped and
// reported at their own path, so decoding the result cannot fail.
func conformApplication(obj map[string]any) (map[string]any, []Issue) {
	var issues []Issue
	out := conformObject(obj, reflect.TypeOf(applicationFields{}), "", &issues)
	for _, p := range disclosurePairs {
		flag := p.Flag()
		if v, ok := out[flag]; ok {
			out[flag] = conform(v, answerType, flag, &issues)
		}
		details, ok := out[p.DetailsField]
		if !ok {
			continue
		}
		if answer, _ := out[flag].(string); Answer(answer) != AnswerYes {
			delete(out, p.DetailsField)
			continue
		}
		shape := reflect.SliceOf(reflect.TypeOf(newDetail(p.Shape)).Elem())
		out[p.DetailsField] = conform(details, shape, p.DetailsField, &issues)
	}
	return out, issues
}

func conformObject(obj map[string]any, t reflect.Type, path string, issues *[]Issue) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if !f.IsExported() || name == "-" || name == "" {
			continue
		}
		if v, ok := obj[name]; ok {
			out[name] = conform(v, f.Type, joinPath(path, name), issues)
		}
	}
	return out
}

func conform(v any, t reflect.Type, path string, issues *[]Issue) any {
	if v == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	reject := func(msg string) any {
		*issues = append(*issues, Issue{Path: path, Message: msg})
		return nil
	}

	switch t {
	case decimalType:
		var s string
		switch n := v.(type) {
		case json.Number:
			s = n.String()
		case string:
			s = n
		default:
			return reject("must be a number")
		}
		if _, err := decimal.NewFromString(s); err != nil {
			return reject("must be a number")
		}
		return v
	case dateType:
		if _, ok := v.(string); !ok {
			return reject("must be a date in YYYY-MM-DD format")
		}
		return v
	case answerType:
		if _, ok := v.(string); !ok {
			return reject("must be yes or no")
		}
		return v
	}

	switch t.Kind() {
	case reflect.String:
		if _, ok := v.(string); !ok {
			return reject("must be text")
		}
		return v
	case reflect.Bool:
		if _, ok := v.(bool); !ok {
			return reject("must be true or false")
		}
		return v
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.(json.Number)
		if !ok {
			return reject("must be a whole number")
		}
		if _, err := n.Int64(); err != nil {
			return reject("must be a whole number")
		}
		return v
	case reflect.Slice:
		items, ok := v.([]any)
		if !ok {
			return reject("must be a list")
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = conform(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i), issues)
		}
		return out
	case reflect.Struct:
		obj, ok := v.(map[string]any)
		if !ok {
			return reject("must be an object")
		}
		return conformObject(obj, t, path, issues)
	}
	return v
}

// withoutRejected drops issues at or below a path whose value was already
// rejected while conforming.
func withoutRejected(issues, rejected []Issue) []Issue {
	if len(rejected) == 0 {
		return issues
	}
	out := issues[:0]
	for _, is := range issues {
		if !underAny(is.Path, rejected) {
			out = append(out, is)
		}
	}
	return append(out, rejected...)
}

func underAny(path string, rejected []Issue) bool {
	for _, r := range rejected {
		if path == r.Path || strings.HasPrefix(path, r.Path+".") || strings.HasPrefix(path, r.Path+"[") {
			return true
		}
	}
	return false
}
