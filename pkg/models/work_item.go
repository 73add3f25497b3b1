package models

import "strconv"

type WorkKind int

const (
	None WorkKind = iota
	ListingPage
	DetailPage
	ImageFetch
	Property
)

func (k WorkKind) String() string {
	switch k {
	case ListingPage:
		return "listing"
	case DetailPage:
		return "detail"
	case ImageFetch:
		return "image"
	case Property:
		return "property"
	default:
		return "none"
	}
}

// WorkItem is one unit of fetch-and-store work. Items are never mutated
// after creation; a retry resubmits the same value.
type WorkItem struct {
	Kind WorkKind
	URL  string
	// ID is the logical identifier: property id for details and images,
	// page number for listing pages.
	ID          string
	Index       int
	Destination string
}

func (w WorkItem) ItemKey() string {
	switch w.Kind {
	case ImageFetch:
		return w.ID + "/image-" + strconv.Itoa(w.Index)
	case ListingPage:
		return "page-" + strconv.Itoa(w.Index)
	default:
		return w.ID
	}
}

func (w WorkItem) OriginURL() string {
	return w.URL
}
