package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	dErrors "policydesk/pkg/domain-errors"
)

// Payload is an application as received from a form or an import row.
type Payload map[string]any

// Mode selects full or partial validation.
type Mode int

const (
	// ModeFull checks every field.
	ModeFull Mode = iota
	// ModePartial checks only the fields present in the payload. A present
	// empty value is still checked.
	ModePartial
)

// Issue is a single validation failure at a JSON path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Warning is a non-blocking finding returned alongside an accepted application.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every issue found in an application.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("application invalid: %s %s", e.Issues[0].Path, e.Issues[0].Message)
	}
	return fmt.Sprintf("application invalid: %d issues", len(e.Issues))
}

// Details exposes the issues to HTTP error responses.
func (e *ValidationError) Details() any {
	return e.Issues
}

// HasPath reports whether any issue is at path.
func (e *ValidationError) HasPath(path string) bool {
	for _, is := range e.Issues {
		if is.Path == path {
			return true
		}
	}
	return false
}

// Result is an accepted application with its derived values.
type Result struct {
	Application *Application `json:"application"`
	Derived     Derived      `json:"derived"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}

var localPhonePattern = regexp.MustCompile(`^[0-9]{9}$`)

// Validator checks applications against the intake schema. Safe for
// concurrent use.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the intake tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Date); ok {
			return d.text()
		}
		return nil
	}, Date{})
	mustRegister(v, "localphone", func(fl validator.FieldLevel) bool {
		return localPhonePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "answer", func(fl validator.FieldLevel) bool {
		a := Answer(fl.Field().String())
		return a == AnswerYes || a == AnswerNo
	})
	mustRegister(v, "isodate", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseDate(fl.Field().String())
		return err == nil
	})
	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("intake: register %s: %v", tag, err))
	}
}

// Validate checks a payload in full mode.
func (v *Validator) Validate(ctx context.Context, payload Payload) (*Result, error) {
	return v.run(ctx, payload, ModeFull)
}

// ValidatePartial checks only the fields present in payload.
func (v *Validator) ValidatePartial(ctx context.Context, payload Payload) (*Result, error) {
	return v.run(ctx, payload, ModePartial)
}

// ValidateJSON decodes a JSON object and validates it in the given mode.
func (v *Validator) ValidateJSON(ctx context.Context, data []byte, mode Mode) (*Result, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "application must be a JSON object")
	}
	return v.run(ctx, payload, mode)
}

// ValidateApplication re-checks an already decoded application in full mode,
// e.g. a stored draft at submission time.
func (v *Validator) ValidateApplication(ctx context.Context, app *Application) (*Result, error) {
	issues := v.check(app)
	derived, derivedIssues := derive(ctx, app)
	issues = append(issues, derivedIssues...)
	if len(issues) > 0 {
		return nil, newValidationError(issues)
	}
	return &Result{Application: app, Derived: derived, Warnings: beneficiaryWarnings(app)}, nil
}

func (v *Validator) run(ctx context.Context, payload Payload, mode Mode) (*Result, error) {
	generic, err := canonical(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "application payload is not a JSON object")
	}
	present := presentPaths(generic)

	cleaned, rejected := conformApplication(blankToNull(generic).(map[string]any))
	data, err := json.Marshal(cleaned)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "application payload is not serialisable")
	}
	app := &Application{}
	if err := json.Unmarshal(data, app); err != nil {
		return nil, newValidationError([]Issue{decodeIssue(err)})
	}

	issues := v.check(app)
	derived, derivedIssues := derive(ctx, app)
	issues = withoutRejected(append(issues, derivedIssues...), rejected)
	if mode == ModePartial {
		issues = keepPresent(issues, present)
	}
	if len(issues) > 0 {
		return nil, newValidationError(issues)
	}
	return &Result{Application: app, Derived: derived, Warnings: beneficiaryWarnings(app)}, nil
}

// check runs the schema pass followed by the cross-field refinement pass.
func (v *Validator) check(app *Application) []Issue {
	issues := v.structIssues(app, "")
	issues = append(issues, v.refine(app)...)
	return dedupe(issues)
}

// structIssues validates s with struct tags and prefixes each path.
func (v *Validator) structIssues(s any, prefix string) []Issue {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Issue{{Path: prefix, Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, Issue{Path: joinPath(prefix, trimRoot(fe.Namespace())), Message: message(fe)})
	}
	return issues
}

func trimRoot(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func joinPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	default:
		return prefix + "." + path
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "localphone":
		return "must be a 9-digit local phone number"
	case "answer":
		return "must be yes or no"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must contain digits only"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		switch fe.Kind() {
		case reflect.Slice:
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

func decodeIssue(err error) Issue {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(decodeErr.Err, &typeErr) {
			return Issue{Path: joinPath(decodeErr.Path, typeErr.Field), Message: fmt.Sprintf("must be a %s", typeErr.Type.String())}
		}
		return Issue{Path: decodeErr.Path, Message: "has an invalid format"}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Issue{Path: typeErr.Field, Message: fmt.Sprintf("must be a %s", typeErr.Type.String())}
	}
	return Issue{Path: "", Message: "payload could not be decoded: " + err.Error()}
}

func newValidationError(issues []Issue) error {
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return dErrors.Wrap(&ValidationError{Issues: issues}, dErrors.CodeValidation, "application failed validation")
}

func dedupe(issues []Issue) []Issue {
	seen := make(map[Issue]bool, len(issues))
	out := issues[:0]
	for _, is := range issues {
		if seen[is] {
			continue
		}
		seen[is] = true
		out = append(out, is)
	}
	return out
}
