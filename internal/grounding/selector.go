package grounding

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"web-task-agent/internal/entity"
)

const maxTextSelectorLen = 50

var (
	escaper     = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	hexHashLike = regexp.MustCompile(`^[a-f0-9]{8,}$`)
)

// Roles specific enough to tag-qualify an aria-label selector. Generic
// tag-name roles do not count.
var qualifyingRoles = map[entity.ElementRole]bool{
	entity.RoleButton:   true,
	entity.RoleLink:     true,
	entity.RoleTextbox:  true,
	entity.RoleCheckbox: true,
	entity.RoleRadio:    true,
	entity.RoleSelect:   true,
}

// Synthesize builds the locator for one harvested element. Rules are ordered
// by stability: test ids, accessible labels, placeholders, exact text,
// editability, roles, names, then structural fallbacks.
func Synthesize(raw RawElement, role entity.ElementRole) string {
	if raw.Attrs.TestValue != "" && raw.Attrs.TestAttr != "" {
		return fmt.Sprintf(`[%s="%s"]`, raw.Attrs.TestAttr, escaper.Replace(raw.Attrs.TestValue))
	}

	if raw.Attrs.AriaLabel != "" {
		label := escaper.Replace(raw.Attrs.AriaLabel)
		if raw.Role != "" || qualifyingRoles[role] {
			return fmt.Sprintf(`%s[aria-label="%s"]`, raw.Tag, label)
		}
		return fmt.Sprintf(`[aria-label="%s"]`, label)
	}

	if raw.Attrs.Placeholder != "" && (raw.Tag == "input" || raw.Tag == "textarea") {
		return fmt.Sprintf(`%s[placeholder="%s"]`, raw.Tag, escaper.Replace(raw.Attrs.Placeholder))
	}

	if buttonLike(raw, role) && raw.Text != "" && utf8.RuneCountInString(raw.Text) <= maxTextSelectorLen {
		return fmt.Sprintf(`%s:text-is("%s")`, raw.Tag, escaper.Replace(raw.Text))
	}

	if raw.ContentEditable {
		return fmt.Sprintf(`%s[contenteditable="true"]`, raw.Tag)
	}

	if interactiveAriaRoles[raw.Role] {
		return fmt.Sprintf(`%s[role="%s"]`, raw.Tag, raw.Role)
	}

	if raw.Attrs.Name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, raw.Tag, escaper.Replace(raw.Attrs.Name))
	}

	return structuralSelector(raw)
}

func buttonLike(raw RawElement, role entity.ElementRole) bool {
	if raw.Tag == "button" || raw.Tag == "a" {
		return true
	}

	return role == entity.RoleButton || role == entity.RoleLink
}

func structuralSelector(raw RawElement) string {
	if id := raw.Attrs.ID; usableID(id) {
		return "#" + id
	}

	if tokens := sanitizeClasses(raw.Attrs.Classes); len(tokens) > 0 {
		return raw.Tag + "." + strings.Join(tokens, ".")
	}

	return raw.Tag
}

// usableID rejects ids that would not survive a CSS id selector: empty,
// leading non-letter, or embedded whitespace.
func usableID(id string) bool {
	if id == "" || strings.Contains(id, " ") {
		return false
	}

	c := id[0]

	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// sanitizeClasses keeps at most two class tokens, skipping generated-looking
// ones: leading digit, over-long, or hex-hash shaped.
func sanitizeClasses(classes string) []string {
	var out []string
	for _, token := range strings.Fields(classes) {
		if token[0] >= '0' && token[0] <= '9' {
			continue
		}
		if len(token) >= 40 || hexHashLike.MatchString(token) {
			continue
		}
		out = append(out, token)
		if len(out) == 2 {
			break
		}
	}

	return out
}
