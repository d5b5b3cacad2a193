package index

// ListingRecord is a projected marketplace listing.
// PriceDisplay always equals ToDisplay(PriceBaseUnits).
type ListingRecord struct {
	ID             string  `json:"id"`
	ItemID         string  `json:"itemId"`
	Name           string  `json:"name"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Description    string  `json:"description,omitempty"`
	PriceBaseUnits uint64  `json:"priceBaseUnits"`
	PriceDisplay   float64 `json:"priceDisplay"`
}

// OwnedItemRecord is a projected item held by the current owner.
type OwnedItemRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

const unknownItemName = "Unknown NFT"
