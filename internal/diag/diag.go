// Package diag collects non-fatal translation warnings.
//
// Warnings never abort a translation; the affected parameter, link,
// security scheme or operation is skipped and the warning explains why.
package diag

import (
	"fmt"
	"strings"
)

// WarningCode identifies a specific warning type.
type WarningCode string

func (c WarningCode) String() string {
	return string(c)
}

// Category returns the code's category, derived from its prefix.
func (c WarningCode) Category() WarningCategory {
	prefix, _, _ := strings.Cut(string(c), "_")
	switch prefix {
	case "PARAMETER":
		return CategoryParameter
	case "SECURITY":
		return CategorySecurity
	case "LINK":
		return CategoryLink
	case "TYPE":
		return CategoryType
	case "OPERATION":
		return CategoryOperation
	default:
		return CategoryUnknown
	}
}

const (
	// WarnParameterLocation indicates a parameter with an unsupported "in" was dropped.
	WarnParameterLocation WarningCode = "PARAMETER_UNSUPPORTED_LOCATION"
	// WarnParameterSchema indicates a parameter without a usable schema was typed as String.
	WarnParameterSchema WarningCode = "PARAMETER_MISSING_SCHEMA"

	// WarnSecurityUndeclared indicates a requirement named a scheme the document does not declare.
	WarnSecurityUndeclared WarningCode = "SECURITY_UNDECLARED_SCHEME"
	// WarnSecurityUnsupported indicates a declared scheme of a kind that cannot be injected.
	WarnSecurityUnsupported WarningCode = "SECURITY_UNSUPPORTED_SCHEME"

	// WarnLinkUnresolved indicates a link whose target operation does not exist.
	WarnLinkUnresolved WarningCode = "LINK_UNRESOLVED_TARGET"
	// WarnLinkNotObject indicates a link on a response that is not an object type.
	WarnLinkNotObject WarningCode = "LINK_NON_OBJECT_RESPONSE"
	// WarnLinkExpression indicates a link parameter expression that cannot be evaluated.
	WarnLinkExpression WarningCode = "LINK_INVALID_EXPRESSION"

	// WarnTypeUnionFallback indicates a oneOf/anyOf with non-object members typed as JSON.
	WarnTypeUnionFallback WarningCode = "TYPE_UNION_FALLBACK"
	// WarnTypeInputUnion indicates a oneOf/anyOf used as input typed as JSON.
	WarnTypeInputUnion WarningCode = "TYPE_INPUT_UNION"
	// WarnTypeContent indicates a request or response media type that is neither JSON nor form data.
	WarnTypeContent WarningCode = "TYPE_UNSUPPORTED_CONTENT"

	// WarnOperationSkipped indicates an operation that could not be translated.
	WarnOperationSkipped WarningCode = "OPERATION_SKIPPED"
	// WarnOperationCallbacks indicates callbacks ignored because subscriptions are not generated.
	WarnOperationCallbacks WarningCode = "OPERATION_CALLBACKS_IGNORED"
)

// WarningCategory groups related warning codes.
type WarningCategory string

const (
	CategoryUnknown   WarningCategory = "unknown"
	CategoryParameter WarningCategory = "parameter"
	CategorySecurity  WarningCategory = "security"
	CategoryLink      WarningCategory = "link"
	CategoryType      WarningCategory = "type"
	CategoryOperation WarningCategory = "operation"
)

func (c WarningCategory) String() string {
	return string(c)
}

// Warning is one non-fatal issue.
type Warning struct {
	Code WarningCode
	// Operation is the operation the warning refers to, e.g. "GET /users/{id}".
	Operation string
	Message   string
}

func (w Warning) String() string {
	if w.Operation == "" {
		return fmt.Sprintf("[%s] %s", w.Code, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Operation, w.Message)
}

// Report accumulates warnings in the order they were raised.
type Report struct {
	Warnings []Warning
}

func (r *Report) Add(code WarningCode, operation, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{
		Code:      code,
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
	})
}

// Has reports whether any warning carries code.
func (r *Report) Has(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Filter returns the warnings carrying any of codes.
func (r *Report) Filter(codes ...WarningCode) []Warning {
	set := make(map[WarningCode]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	var out []Warning
	for _, w := range r.Warnings {
		if _, ok := set[w.Code]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Counts returns warning counts grouped by category.
func (r *Report) Counts() map[WarningCategory]int {
	counts := make(map[WarningCategory]int)
	for _, w := range r.Warnings {
		counts[w.Code.Category()]++
	}
	return counts
}

func (r *Report) Len() int { return len(r.Warnings) }
