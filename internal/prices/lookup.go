package prices

import (
	"math"

	"prop-crawler/pkg/models"
)

// DefaultPrice is quoted when no town has bounds to compare against.
const DefaultPrice = "€300,000"

type MatchType string

const (
	Exact   MatchType = "exact"
	Nearest MatchType = "nearest"
	Default MatchType = "default"
)

type Match struct {
	Town       string    `json:"town"`
	Price      string    `json:"price"`
	MatchType  MatchType `json:"matchType"`
	County     string    `json:"county,omitempty"`
	DistanceKm float64   `json:"distanceKm,omitempty"`
}

// Lookup finds the town whose bounds contain the point, falling back to the
// town with the nearest bounds centre, then to the national default.
func Lookup(counties []models.CountyPrices, lat, lon float64) Match {
	for _, c := range counties {
		for _, town := range c.Towns {
			if town.Bounds != nil && contains(*town.Bounds, lat, lon) {
				return Match{Town: town.Town, Price: priceOr(town.Price), MatchType: Exact, County: c.County}
			}
		}
	}

	var (
		best    *models.TownPrice
		county  string
		minDist = math.Inf(1)
	)
	for _, c := range counties {
		for i := range c.Towns {
			town := &c.Towns[i]
			if town.Bounds == nil {
				continue
			}
			center := centre(*town.Bounds)
			if d := distanceKm(lat, lon, center.Lat, center.Lng); d < minDist {
				best, county, minDist = town, c.County, d
			}
		}
	}
	if best != nil {
		return Match{
			Town:       best.Town,
			Price:      priceOr(best.Price),
			MatchType:  Nearest,
			County:     county,
			DistanceKm: math.Round(minDist*10) / 10,
		}
	}
	return Match{Town: "Ireland (National Average)", Price: DefaultPrice, MatchType: Default}
}

func priceOr(p string) string {
	if p == "" {
		return DefaultPrice
	}
	return p
}

func contains(b models.Bounds, lat, lon float64) bool {
	return lat >= b.Southwest.Lat && lat <= b.Northeast.Lat &&
		lon >= b.Southwest.Lng && lon <= b.Northeast.Lng
}

func centre(b models.Bounds) models.LatLng {
	return models.LatLng{
		Lat: (b.Northeast.Lat + b.Southwest.Lat) / 2,
		Lng: (b.Northeast.Lng + b.Southwest.Lng) / 2,
	}
}

// distanceKm is the haversine distance between two points.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
