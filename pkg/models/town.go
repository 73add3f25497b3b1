package models

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Bounds struct {
	Northeast LatLng `json:"northeast"`
	Southwest LatLng `json:"southwest"`
}

type TownPrice struct {
	Town   string  `json:"town"`
	Price  string  `json:"price"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// CountyPrices is stored one document per county.
type CountyPrices struct {
	County string      `json:"county"`
	Towns  []TownPrice `json:"towns"`
}
