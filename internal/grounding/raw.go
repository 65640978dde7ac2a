// Package grounding turns the raw in-page harvest into the element inventory
// the decision engine reasons over: role inference, selector synthesis,
// region and depth classification, dedup and parent linkage.
package grounding

import "web-task-agent/internal/entity"

// Harvest pass indices, mirroring the capture order of the in-page script.
const (
	PassTags = iota
	PassAriaRoles
	PassContentEditable
	PassClickHandlers
	PassTestIDs
	PassPointerCursor
)

// RawElement is one candidate as exported by the harvest script, before any
// Go-side processing.
type RawElement struct {
	Tag              string             `json:"tag"`
	Role             string             `json:"role"`
	Text             string             `json:"text"`
	Pass             int                `json:"pass"`
	ContentEditable  bool               `json:"contentEditable"`
	Box              entity.BoundingBox `json:"box"`
	Attrs            RawAttrs           `json:"attrs"`
	Ancestors        []RawAncestor      `json:"ancestors"`
	ParentCandidates []int              `json:"parentCandidates"`
}

type RawAttrs struct {
	AriaLabel   string `json:"ariaLabel"`
	Placeholder string `json:"placeholder"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	ID          string `json:"id"`
	Classes     string `json:"classes"`
	TestAttr    string `json:"testAttr"`
	TestValue   string `json:"testValue"`
}

// RawAncestor holds the landmark features of one ancestor, nearest first.
// The chain covers elements strictly between the node and the document body.
type RawAncestor struct {
	Tag   string `json:"tag"`
	Role  string `json:"role"`
	ID    string `json:"id"`
	Class string `json:"cls"`
}
