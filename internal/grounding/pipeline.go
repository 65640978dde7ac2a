package grounding

import "web-task-agent/internal/entity"

// Assemble converts the raw harvest into the final element inventory. The
// work is deterministic: identical input always yields an identical
// inventory, in harvest order.
//
// Duplicate synthesized selectors collapse to the first occurrence. Parent
// linkage points each kept element at its nearest candidate ancestor that
// also survived dedup; ancestors deduped away are skipped, so the result is
// a DAG over selectors rather than a strict tree.
func Assemble(raw []RawElement) []entity.InteractiveElement {
	elements := make([]entity.InteractiveElement, 0, len(raw))
	kept := make([]int, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for i, r := range raw {
		role := InferRole(r)
		selector := Synthesize(r, role)

		if _, dup := seen[selector]; dup {
			kept[i] = -1
			continue
		}
		seen[selector] = struct{}{}

		kept[i] = len(elements)
		elements = append(elements, entity.InteractiveElement{
			Selector:    selector,
			Text:        r.Text,
			Role:        role,
			Visible:     true,
			BoundingBox: r.Box,
			Region:      ClassifyRegion(r),
			Depth:       len(r.Ancestors),
			AriaLabel:   r.Attrs.AriaLabel,
			Placeholder: r.Attrs.Placeholder,
			Title:       r.Attrs.Title,
			Name:        r.Attrs.Name,
			Type:        r.Attrs.Type,
			Value:       r.Attrs.Value,
		})
	}

	for i, r := range raw {
		ki := kept[i]
		if ki < 0 {
			continue
		}
		for _, ancestor := range r.ParentCandidates {
			if ancestor < 0 || ancestor >= len(raw) || ancestor == i {
				continue
			}
			if pk := kept[ancestor]; pk >= 0 {
				elements[ki].ParentSelector = elements[pk].Selector
				break
			}
		}
	}

	return elements
}
