package grounding

import (
	"strings"

	"web-task-agent/internal/entity"
)

type landmark struct {
	region entity.PageRegion
	tag    string
	role   string
	hint   string
}

// Signature order matters: the first matching signature on the nearest
// matching element wins.
var landmarks = []landmark{
	{entity.RegionHeader, "header", "banner", "header"},
	{entity.RegionNav, "nav", "navigation", "nav"},
	{entity.RegionSidebar, "aside", "complementary", "sidebar"},
	{entity.RegionFooter, "footer", "contentinfo", "footer"},
	{entity.RegionMain, "main", "main", "main-content"},
}

// ClassifyRegion walks from the node outward through its ancestors and
// returns the first landmark region found, defaulting to main.
func ClassifyRegion(raw RawElement) entity.PageRegion {
	if region, ok := matchLandmark(raw.Tag, raw.Role, raw.Attrs.ID, raw.Attrs.Classes); ok {
		return region
	}

	for _, a := range raw.Ancestors {
		if region, ok := matchLandmark(a.Tag, a.Role, a.ID, a.Class); ok {
			return region
		}
	}

	return entity.RegionMain
}

func matchLandmark(tag, role, id, class string) (entity.PageRegion, bool) {
	tag = strings.ToLower(tag)
	role = strings.ToLower(role)
	idClass := strings.ToLower(id + " " + class)

	for _, lm := range landmarks {
		if tag == lm.tag || role == lm.role || strings.Contains(idClass, lm.hint) {
			return lm.region, true
		}
	}

	return "", false
}
