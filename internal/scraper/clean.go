package scraper

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"prop-crawler/pkg/models"
)

// DetailPage is the part of a detail page's hydration blob that Clean reads.
type DetailPage struct {
	Props struct {
		PageProps struct {
			Listing      *rawListing       `json:"listing"`
			Amenities    *models.Amenities `json:"amenities"`
			ListingViews *int64            `json:"listingViews"`
		} `json:"pageProps"`
	} `json:"props"`
}

type rawListing struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	SeoTitle        string          `json:"seoTitle"`
	FloorArea       json.RawMessage `json:"floorArea"`
	PropertySize    string          `json:"propertySize"`
	DaftShortcode   string          `json:"daftShortcode"`
	SeoFriendlyPath string          `json:"seoFriendlyPath"`
	PriceHistory    json.RawMessage `json:"priceHistory"`
	PropertyType    string          `json:"propertyType"`
	Price           string          `json:"price"`
	NumBedrooms     string          `json:"numBedrooms"`
	NumBathrooms    string          `json:"numBathrooms"`
	NonFormatted    struct {
		Beds *int `json:"beds"`
	} `json:"nonFormatted"`
	AreaName              string `json:"areaName"`
	PrimaryAreaID         int64  `json:"primaryAreaId"`
	IsInRepublicOfIreland bool   `json:"isInRepublicOfIreland"`
	Point                 struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"point"`
	PublishDate        json.RawMessage `json:"publishDate"`
	LastUpdateDate     json.RawMessage `json:"lastUpdateDate"`
	DateOfConstruction json.RawMessage `json:"dateOfConstruction"`
	Media              struct {
		Images         []models.Image `json:"images"`
		TotalImages    int            `json:"totalImages"`
		HasVideo       bool           `json:"hasVideo"`
		HasVirtualTour bool           `json:"hasVirtualTour"`
		HasBrochure    bool           `json:"hasBrochure"`
	} `json:"media"`
	Seller struct {
		SellerID             int64  `json:"sellerId"`
		Name                 string `json:"name"`
		SellerType           string `json:"sellerType"`
		Branch               string `json:"branch"`
		Address              string `json:"address"`
		Phone                string `json:"phone"`
		AlternativePhone     string `json:"alternativePhone"`
		LicenceNumber        string `json:"licenceNumber"`
		SellerAvailable      bool   `json:"sellerAvailable"`
		PremierPartnerSeller bool   `json:"premierPartnerSeller"`

		ProfileImage        *string `json:"profileImage"`
		ProfileRoundedImage *string `json:"profileRoundedImage"`
		StandardLogo        *string `json:"standardLogo"`
		SquareLogo          *string `json:"squareLogo"`
		BackgroundColour    *string `json:"backgroundColour"`
	} `json:"seller"`
	BER *struct {
		Rating *string `json:"rating"`
	} `json:"ber"`
	Description    string   `json:"description"`
	Features       []string `json:"features"`
	StampDutyValue string   `json:"stampDutyValue"`

	Sections          json.RawMessage `json:"sections"`
	PageBranding      json.RawMessage `json:"pageBranding"`
	FeaturedLevel     string          `json:"featuredLevel"`
	FeaturedLevelFull string          `json:"featuredLevelFull"`
	Sticker           json.RawMessage `json:"sticker"`
	SellingType       string          `json:"sellingType"`
	Category          string          `json:"category"`
	State             string          `json:"state"`
	Platform          string          `json:"platform"`
	PremierPartner    bool            `json:"premierPartner"`
	ImageRestricted   bool            `json:"imageRestricted"`
}

var (
	priceRe   = regexp.MustCompile(`€?([\d,]+)`)
	numberRe  = regexp.MustCompile(`\d+`)
	eircodeRe = regexp.MustCompile(`\b[A-Z]\d{2}\s?[A-Z0-9]{4}\b`)
	folioRe   = regexp.MustCompile(`(?i)\bFolio\s+([A-Z]{2}\d+[A-Z]?)\b`)

	shortDriveRe = regexp.MustCompile(`(?i)(?:short drive|a few minutes) from ([^.,]+)`)
	withinHourRe = regexp.MustCompile(`(?i)within (?:an? )?hours? drive of ([^.,]+)`)
	closeToRe    = regexp.MustCompile(`(?i)close to ([^.,]+)`)
)

var utilityPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"mains water", regexp.MustCompile(`mains\s+water`)},
	{"mains sewage", regexp.MustCompile(`mains\s+sewage`)},
	{"septic tank", regexp.MustCompile(`septic\s+tank`)},
	{"broadband", regexp.MustCompile(`broadband`)},
	{"phone line", regexp.MustCompile(`phone\s+line`)},
	{"electricity", regexp.MustCompile(`electricity`)},
	{"gas", regexp.MustCompile(`gas\s+(supply|available)`)},
}

// Clean turns a detail page's hydration blob into a PropertyRecord. It
// reports false when the page carries no listing.
func Clean(page DetailPage) (models.PropertyRecord, bool) {
	l := page.Props.PageProps.Listing
	if l == nil {
		return models.PropertyRecord{}, false
	}

	bedrooms := ExtractNumber(l.NumBedrooms)
	if bedrooms == nil || *bedrooms == 0 {
		bedrooms = l.NonFormatted.Beds
	}

	var ber models.BER
	if l.BER != nil {
		ber.Rating = l.BER.Rating
	}

	images := l.Media.Images
	if images == nil {
		images = []models.Image{}
	}

	return models.PropertyRecord{
		ID:                 l.ID,
		Title:              l.Title,
		SeoTitle:           l.SeoTitle,
		PropertyType:       l.PropertyType,
		Price:              ExtractPrice(l.Price),
		Bedrooms:           bedrooms,
		Bathrooms:          ExtractNumber(l.NumBathrooms),
		FloorArea:          nullable(l.FloorArea),
		FloorAreaFormatted: l.PropertySize,
		FloorPlanImages:    FloorPlanImages(images),
		DaftShortcode:      l.DaftShortcode,
		SeoFriendlyPath:    l.SeoFriendlyPath,
		PriceHistory:       nullable(l.PriceHistory),
		Sections:           orRaw(l.Sections, "[]"),
		Location: models.Location{
			AreaName:              l.AreaName,
			PrimaryAreaID:         l.PrimaryAreaID,
			IsInRepublicOfIreland: l.IsInRepublicOfIreland,
			Coordinates:           orEmpty(l.Point.Coordinates),
			Eircodes:              ExtractEircodes(l.Description),
		},
		Dates: models.Dates{
			PublishDate:        parseDate(l.PublishDate),
			LastUpdateDate:     parseDate(l.LastUpdateDate),
			DateOfConstruction: rawString(l.DateOfConstruction),
		},
		Media: models.Media{
			Images:         images,
			TotalImages:    l.Media.TotalImages,
			HasVideo:       l.Media.HasVideo,
			HasVirtualTour: l.Media.HasVirtualTour,
			HasBrochure:    l.Media.HasBrochure,
		},
		Seller: models.Seller{
			ID:               l.Seller.SellerID,
			Name:             l.Seller.Name,
			Type:             l.Seller.SellerType,
			Branch:           l.Seller.Branch,
			Address:          l.Seller.Address,
			Phone:            l.Seller.Phone,
			AlternativePhone: l.Seller.AlternativePhone,
			LicenceNumber:    l.Seller.LicenceNumber,
			Available:        l.Seller.SellerAvailable,
			PremierPartner:   l.Seller.PremierPartnerSeller,
			Images: &models.SellerImages{
				ProfileImage:        l.Seller.ProfileImage,
				ProfileRoundedImage: l.Seller.ProfileRoundedImage,
				StandardLogo:        l.Seller.StandardLogo,
				SquareLogo:          l.Seller.SquareLogo,
			},
			BackgroundColour: l.Seller.BackgroundColour,
		},
		BER:         ber,
		Amenities:   page.Props.PageProps.Amenities,
		Description: l.Description,
		Features:    orEmpty(l.Features),
		Extracted: models.Extracted{
			Folios:          ExtractFolios(l.Description),
			Utilities:       ExtractUtilities(l.Description),
			NearbyLocations: ExtractNearbyLocations(l.Description),
		},
		Metadata: &models.Metadata{
			FeaturedLevel:     l.FeaturedLevel,
			FeaturedLevelFull: l.FeaturedLevelFull,
			Sticker:           nullable(l.Sticker),
			SellingType:       l.SellingType,
			Category:          l.Category,
			State:             l.State,
			Platform:          l.Platform,
			PremierPartner:    l.PremierPartner,
			ImageRestricted:   l.ImageRestricted,
		},
		Stamps:    models.Stamps{StampDutyValue: ExtractPrice(l.StampDutyValue)},
		Branding:  orRaw(l.PageBranding, "{}"),
		Analytics: models.Analytics{ListingViews: page.Props.PageProps.ListingViews},
	}, true
}

// ExtractPrice reads the first run of digits and commas as a euro amount.
func ExtractPrice(s string) *models.Price {
	if s == "" {
		return nil
	}
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	digits := strings.ReplaceAll(m[1], ",", "")
	if digits == "" {
		return nil
	}
	amount, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &models.Price{Amount: amount, Currency: "EUR", Formatted: s}
}

// ExtractNumber returns the first integer in s.
func ExtractNumber(s string) *int {
	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

func ExtractEircodes(text string) []string {
	out := []string{}
	for _, m := range eircodeRe.FindAllString(text, -1) {
		out = append(out, strings.ReplaceAll(m, " ", ""))
	}
	return out
}

func ExtractFolios(text string) []string {
	out := []string{}
	for _, m := range folioRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func ExtractUtilities(text string) []string {
	lower := strings.ToLower(text)
	out := []string{}
	for _, u := range utilityPatterns {
		if u.re.MatchString(lower) {
			out = append(out, u.name)
		}
	}
	return out
}

func ExtractNearbyLocations(text string) models.NearbyLocations {
	var out models.NearbyLocations
	for _, m := range shortDriveRe.FindAllStringSubmatch(text, -1) {
		out.ShortDrive = append(out.ShortDrive, splitOr(m[1])...)
	}
	for _, m := range withinHourRe.FindAllStringSubmatch(text, -1) {
		out.WithinHour = append(out.WithinHour, splitOr(m[1])...)
	}
	for _, m := range closeToRe.FindAllStringSubmatch(text, -1) {
		out.CloseBy = append(out.CloseBy, strings.TrimSpace(m[1]))
	}
	return out
}

func splitOr(s string) []string {
	parts := strings.Split(s, " or ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// FloorPlanImages keeps images labelled as floor plans.
func FloorPlanImages(images []models.Image) []models.Image {
	out := []models.Image{}
	for _, img := range images {
		for _, label := range img.ImageLabels {
			if label.Type == "FLOOR_PLAN" {
				out = append(out, img)
				break
			}
		}
	}
	return out
}

// parseDate normalizes ISO dates and passes anything else (such as epoch
// milliseconds) through as text.
func parseDate(raw json.RawMessage) string {
	s := rawString(raw)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(time.RFC3339)
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Format("2006-01-02T15:04:05")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format("2006-01-02T15:04:05")
	}
	return s
}

// rawString renders a JSON scalar as text; null becomes "".
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func nullable(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func orRaw(raw json.RawMessage, empty string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(empty)
	}
	return raw
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
