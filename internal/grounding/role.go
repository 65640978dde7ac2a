package grounding

import "web-task-agent/internal/entity"

// Input types whose value is free text. Anything else (checkbox, radio,
// submit, ...) keeps its type as the role.
var textInputTypes = map[string]bool{
	"text":     true,
	"email":    true,
	"password": true,
	"search":   true,
	"tel":      true,
	"url":      true,
}

// The interactive ARIA roles the harvest targets. Also the closed set that
// qualifies a role for selector rule 6.
var interactiveAriaRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"textbox":  true,
	"menuitem": true,
	"tab":      true,
	"option":   true,
	"switch":   true,
	"checkbox": true,
	"radio":    true,
}

// InferRole picks the element role: an explicit ARIA role wins verbatim,
// otherwise the tag decides, with pointer-cursor fallback nodes treated as
// buttons.
func InferRole(raw RawElement) entity.ElementRole {
	if raw.Role != "" {
		return entity.ElementRole(raw.Role)
	}

	if raw.ContentEditable {
		return entity.RoleTextbox
	}

	switch raw.Tag {
	case "button":
		return entity.RoleButton
	case "a":
		return entity.RoleLink
	case "select":
		return entity.RoleSelect
	case "textarea":
		return entity.RoleTextbox
	case "input":
		t := raw.Attrs.Type
		if t == "" {
			t = "text"
		}
		if textInputTypes[t] {
			return entity.RoleTextbox
		}
		return entity.ElementRole(t)
	}

	if raw.Pass == PassPointerCursor {
		return entity.RoleButton
	}

	return entity.ElementRole(raw.Tag)
}
