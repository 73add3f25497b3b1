package models

import (
	"encoding/json"
	"strconv"
)

type PropertyRecord struct {
	ID                 int64           `json:"id"`
	Title              string          `json:"title,omitempty"`
	SeoTitle           string          `json:"seoTitle,omitempty"`
	PropertyType       string          `json:"propertyType,omitempty"`
	Price              *Price          `json:"price,omitempty"`
	Bedrooms           *int            `json:"bedrooms,omitempty"`
	Bathrooms          *int            `json:"bathrooms,omitempty"`
	FloorArea          json.RawMessage `json:"floorArea,omitempty"`
	FloorAreaFormatted string          `json:"floorAreaFormatted,omitempty"`
	FloorPlanImages    []Image         `json:"floorPlanImages"`
	DaftShortcode      string          `json:"daftShortcode,omitempty"`
	SeoFriendlyPath    string          `json:"seoFriendlyPath,omitempty"`
	PriceHistory       json.RawMessage `json:"priceHistory,omitempty"`
	Sections           json.RawMessage `json:"sections,omitempty"`
	Location           Location        `json:"location"`
	Dates              Dates           `json:"dates"`
	Media              Media           `json:"media"`
	Seller             Seller          `json:"seller"`
	BER                BER             `json:"ber"`
	Amenities          *Amenities      `json:"amenities,omitempty"`
	Description        string          `json:"description"`
	Features           []string        `json:"features"`
	Extracted          Extracted       `json:"extracted"`
	Metadata           *Metadata       `json:"metadata,omitempty"`
	Stamps             Stamps          `json:"stamps"`
	Branding           json.RawMessage `json:"branding,omitempty"`
	Analytics          Analytics       `json:"analytics"`
	StorageImages      []string        `json:"storageImages,omitempty"`

	// Key is the document-store key the record was loaded under.
	Key string `json:"-"`
}

// DocID is the document-store key: Key when the record came from the
// store, otherwise the listing id, so that re-imports upsert.
func (p PropertyRecord) DocID() string {
	if p.Key != "" {
		return p.Key
	}
	return strconv.FormatInt(p.ID, 10)
}

type Price struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Formatted string  `json:"formatted"`
}

type Location struct {
	AreaName              string    `json:"areaName,omitempty"`
	PrimaryAreaID         int64     `json:"primaryAreaId,omitempty"`
	IsInRepublicOfIreland bool      `json:"isInRepublicOfIreland"`
	Coordinates           []float64 `json:"coordinates"`
	Eircodes              []string  `json:"eircodes"`
}

type Dates struct {
	PublishDate        string `json:"publishDate,omitempty"`
	LastUpdateDate     string `json:"lastUpdateDate,omitempty"`
	DateOfConstruction string `json:"dateOfConstruction,omitempty"`
}

type Image struct {
	Size1440x960  string       `json:"size1440x960,omitempty"`
	Size1200x1200 string       `json:"size1200x1200,omitempty"`
	Size720x480   string       `json:"size720x480,omitempty"`
	Size600x600   string       `json:"size600x600,omitempty"`
	Size360x240   string       `json:"size360x240,omitempty"`
	Size72x52     string       `json:"size72x52,omitempty"`
	ImageLabels   []ImageLabel `json:"imageLabels,omitempty"`
	Caption       string       `json:"caption,omitempty"`
	// Extra holds every field not named above, so decoding and encoding an
	// image keeps sizes the listing site adds later.
	Extra map[string]json.RawMessage `json:"-"`
}

var imageKeys = []string{
	"size1440x960", "size1200x1200", "size720x480", "size600x600",
	"size360x240", "size72x52", "imageLabels", "caption",
}

type imageFields Image

func (img *Image) UnmarshalJSON(data []byte) error {
	var fields imageFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range imageKeys {
		delete(all, key)
	}
	fields.Extra = nil
	if len(all) > 0 {
		fields.Extra = all
	}
	*img = Image(fields)
	return nil
}

func (img Image) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(imageFields(img))
	if err != nil || len(img.Extra) == 0 {
		return known, err
	}
	out := make(map[string]json.RawMessage, len(img.Extra)+len(imageKeys))
	for k, v := range img.Extra {
		out[k] = v
	}
	// Named fields win over a stale copy in Extra.
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

type ImageLabel struct {
	Label string `json:"label,omitempty"`
	Type  string `json:"type"`
}

type Media struct {
	Images         []Image `json:"images"`
	TotalImages    int     `json:"totalImages"`
	HasVideo       bool    `json:"hasVideo"`
	HasVirtualTour bool    `json:"hasVirtualTour"`
	HasBrochure    bool    `json:"hasBrochure"`
}

type Seller struct {
	ID               int64  `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	Type             string `json:"type,omitempty"`
	Branch           string `json:"branch,omitempty"`
	Address          string `json:"address,omitempty"`
	Phone            string `json:"phone,omitempty"`
	AlternativePhone string `json:"alternativePhone,omitempty"`
	LicenceNumber    string `json:"licenceNumber,omitempty"`
	Available        bool   `json:"available"`
	PremierPartner   bool   `json:"premierPartner"`

	Images           *SellerImages `json:"images,omitempty"`
	BackgroundColour *string       `json:"backgroundColour,omitempty"`
}

type SellerImages struct {
	ProfileImage        *string `json:"profileImage"`
	ProfileRoundedImage *string `json:"profileRoundedImage"`
	StandardLogo        *string `json:"standardLogo"`
	SquareLogo          *string `json:"squareLogo"`
}

type Metadata struct {
	FeaturedLevel     string          `json:"featuredLevel,omitempty"`
	FeaturedLevelFull string          `json:"featuredLevelFull,omitempty"`
	Sticker           json.RawMessage `json:"sticker,omitempty"`
	SellingType       string          `json:"sellingType,omitempty"`
	Category          string          `json:"category,omitempty"`
	State             string          `json:"state,omitempty"`
	Platform          string          `json:"platform,omitempty"`
	PremierPartner    bool            `json:"premierPartner"`
	ImageRestricted   bool            `json:"imageRestricted"`
}

type BER struct {
	Rating *string `json:"rating"`
}

type Distance struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type GeoPoint struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type School struct {
	SchoolName string   `json:"schoolName"`
	NumPupils  int      `json:"numPupils"`
	Distance   Distance `json:"distance"`
	Location   GeoPoint `json:"location"`
}

type PublicTransport struct {
	Type        string   `json:"type"`
	Stop        string   `json:"stop"`
	Route       string   `json:"route"`
	Destination string   `json:"destination"`
	Provider    string   `json:"provider"`
	Distance    Distance `json:"distance"`
	Location    GeoPoint `json:"location"`
}

type Amenities struct {
	PrimarySchools   []School          `json:"primarySchools"`
	SecondarySchools []School          `json:"secondarySchools"`
	PublicTransports []PublicTransport `json:"publicTransports"`
}

type NearbyLocations struct {
	CloseBy    []string `json:"closeBy,omitempty"`
	ShortDrive []string `json:"shortDrive,omitempty"`
	WithinHour []string `json:"withinHour,omitempty"`
}

type Extracted struct {
	Folios          []string        `json:"folios"`
	Utilities       []string        `json:"utilities"`
	NearbyLocations NearbyLocations `json:"nearbyLocations"`
}

type Stamps struct {
	StampDutyValue *Price `json:"stampDutyValue,omitempty"`
}

type Analytics struct {
	ListingViews *int64 `json:"listingViews,omitempty"`
}
