package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"web-task-agent/internal/entity"
)

func saveButton(x float64) RawElement {
	return RawElement{
		Tag:  "button",
		Text: "Save",
		Box:  entity.BoundingBox{X: x, Y: 20, Width: 40, Height: 20},
	}
}

func TestAssembleDeterministic(t *testing.T) {
	raw := []RawElement{
		saveButton(10),
		{Tag: "input", Attrs: RawAttrs{Placeholder: "Search", Type: "search"}},
		{Tag: "a", Text: "Home", Ancestors: []RawAncestor{{Tag: "nav"}}},
	}

	first := Assemble(raw)
	second := Assemble(raw)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestAssembleDedupKeepsFirst(t *testing.T) {
	raw := []RawElement{saveButton(10), saveButton(400)}

	elements := Assemble(raw)

	require.Len(t, elements, 1)
	assert.Equal(t, `button:text-is("Save")`, elements[0].Selector)
	assert.Equal(t, 10.0, elements[0].BoundingBox.X)
}

func TestAssembleOrderAndFields(t *testing.T) {
	raw := []RawElement{
		{
			Tag: "input",
			Attrs: RawAttrs{
				AriaLabel:   "Email",
				Placeholder: "you@example.com",
				Name:        "email",
				Type:        "email",
				Value:       "alice@example.com",
			},
			Box:       entity.BoundingBox{X: 5, Y: 6, Width: 100, Height: 30},
			Ancestors: []RawAncestor{{Tag: "form"}, {Tag: "main"}},
		},
		{Tag: "button", Text: "Send"},
	}

	elements := Assemble(raw)
	require.Len(t, elements, 2)

	email := elements[0]
	assert.Equal(t, `input[aria-label="Email"]`, email.Selector)
	assert.Equal(t, entity.RoleTextbox, email.Role)
	assert.True(t, email.Visible)
	assert.Equal(t, entity.RegionMain, email.Region)
	assert.Equal(t, 2, email.Depth)
	assert.Equal(t, "you@example.com", email.Placeholder)
	assert.Equal(t, "alice@example.com", email.Value)

	assert.Equal(t, `button:text-is("Send")`, elements[1].Selector)
}

func TestAssembleParentLinkage(t *testing.T) {
	raw := []RawElement{
		{Tag: "div", Pass: PassClickHandlers, Attrs: RawAttrs{ID: "menu"}},
		{
			Tag:              "a",
			Text:             "Docs",
			ParentCandidates: []int{0},
		},
	}

	elements := Assemble(raw)
	require.Len(t, elements, 2)
	assert.Equal(t, "#menu", elements[1].ParentSelector)
	assert.Empty(t, elements[0].ParentSelector)
}

func TestAssembleParentSkipsDedupedAncestor(t *testing.T) {
	raw := []RawElement{
		{Tag: "div", Pass: PassClickHandlers, Attrs: RawAttrs{ID: "outer"}},
		saveButton(10),
		saveButton(400),
		{
			Tag:              "span",
			Text:             "hint",
			Pass:             PassPointerCursor,
			ParentCandidates: []int{2, 0},
		},
	}

	elements := Assemble(raw)
	require.Len(t, elements, 3)

	// The nearest candidate ancestor (index 2) was deduped away; linkage
	// falls through to the next surviving one.
	hint := elements[2]
	assert.Equal(t, `span:text-is("hint")`, hint.Selector)
	assert.Equal(t, "#outer", hint.ParentSelector)
}

func TestAssembleEmptyHarvest(t *testing.T) {
	assert.Empty(t, Assemble(nil))
	assert.Empty(t, Assemble([]RawElement{}))
}
