package grounding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"web-task-agent/internal/entity"
)

func TestClassifyRegion(t *testing.T) {
	tests := []struct {
		name string
		raw  RawElement
		want entity.PageRegion
	}{
		{
			name: "node itself is a landmark",
			raw:  RawElement{Tag: "nav"},
			want: entity.RegionNav,
		},
		{
			name: "ancestor tag",
			raw: RawElement{
				Tag:       "a",
				Ancestors: []RawAncestor{{Tag: "div"}, {Tag: "footer"}},
			},
			want: entity.RegionFooter,
		},
		{
			name: "ancestor role",
			raw: RawElement{
				Tag:       "button",
				Ancestors: []RawAncestor{{Tag: "div", Role: "banner"}},
			},
			want: entity.RegionHeader,
		},
		{
			name: "id hint",
			raw: RawElement{
				Tag:       "button",
				Ancestors: []RawAncestor{{Tag: "div", ID: "page-header"}},
			},
			want: entity.RegionHeader,
		},
		{
			name: "class hint",
			raw: RawElement{
				Tag:       "a",
				Ancestors: []RawAncestor{{Tag: "div", Class: "left sidebar-fixed"}},
			},
			want: entity.RegionSidebar,
		},
		{
			name: "nearest ancestor wins",
			raw: RawElement{
				Tag: "a",
				Ancestors: []RawAncestor{
					{Tag: "div", Class: "nav-menu"},
					{Tag: "footer"},
				},
			},
			want: entity.RegionNav,
		},
		{
			name: "signature order within one element",
			raw: RawElement{
				Tag:       "a",
				Ancestors: []RawAncestor{{Tag: "aside", Class: "header-links"}},
			},
			want: entity.RegionHeader,
		},
		{
			name: "main content hint",
			raw: RawElement{
				Tag:       "button",
				Ancestors: []RawAncestor{{Tag: "div", ID: "main-content"}},
			},
			want: entity.RegionMain,
		},
		{
			name: "default is main",
			raw: RawElement{
				Tag:       "button",
				Ancestors: []RawAncestor{{Tag: "div"}, {Tag: "section"}},
			},
			want: entity.RegionMain,
		},
		{
			name: "case insensitive hints",
			raw: RawElement{
				Tag:       "a",
				Ancestors: []RawAncestor{{Tag: "div", Class: "Header-Wrap"}},
			},
			want: entity.RegionHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRegion(tt.raw))
		})
	}
}
