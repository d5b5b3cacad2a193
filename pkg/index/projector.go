package index

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/ledger"
	"github.com/uhyunpark/objmarket/pkg/util"
)

// Projector turns raw pages into typed records.
//
// An object is accepted when its declared type equals ExpectedType. As a
// degraded path, a type whose struct name contains Concept is accepted too
// and logged; type parameters are not searched. With no ExpectedType nothing
// is accepted. Objects with no id or no type are dropped.
type Projector struct {
	ExpectedType string
	Concept      string
	Log          *zap.SugaredLogger
}

func NewListingProjector(expectedType string, log *zap.SugaredLogger) *Projector {
	return &Projector{ExpectedType: expectedType, Concept: "Listing", Log: log}
}

func NewItemProjector(expectedType string, log *zap.SugaredLogger) *Projector {
	return &Projector{ExpectedType: expectedType, Concept: "NFT", Log: log}
}

func (p *Projector) accept(obj ledger.RemoteObject) bool {
	log := util.Sugar(p.Log)
	if obj.ID == "" {
		return false
	}
	switch {
	case obj.Type == "":
		log.Warnw("object_dropped", "id", obj.ID, "reason", "no declared type")
		return false
	case p.ExpectedType == "":
		return false
	case obj.Type == p.ExpectedType:
		return true
	case p.Concept != "" && strings.Contains(structName(obj.Type), p.Concept):
		log.Warnw("object_type_fallback", "id", obj.ID, "type", obj.Type, "expected", p.ExpectedType)
		return true
	default:
		log.Warnw("object_dropped", "id", obj.ID, "type", obj.Type, "expected", p.ExpectedType)
		return false
	}
}

// structName returns the struct part of a Move type tag:
// "0x9::market::Listing<0x9::nft::NFT>" gives "Listing".
func structName(typ string) string {
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	if i := strings.LastIndex(typ, "::"); i >= 0 {
		typ = typ[i+2:]
	}
	return typ
}

// ProjectListings flattens pages into unique listings. When an id appears
// more than once the last occurrence wins; output keeps first-seen order.
func (p *Projector) ProjectListings(pages []ledger.Page) []ListingRecord {
	var out []ListingRecord
	pos := make(map[string]int)
	for _, page := range pages {
		for _, obj := range page.Items {
			if !p.accept(obj) {
				continue
			}
			rec := p.listingRecord(obj)
			if i, ok := pos[rec.ID]; ok {
				out[i] = rec
				continue
			}
			pos[rec.ID] = len(out)
			out = append(out, rec)
		}
	}
	return out
}

func (p *Projector) listingRecord(obj ledger.RemoteObject) ListingRecord {
	fields := gjson.ParseBytes(obj.Fields)

	item := fields.Get("nft.fields")
	if !item.IsObject() {
		item = fields.Get("nft")
	}

	rec := ListingRecord{
		ID:             obj.ID,
		ItemID:         stringOr(item.Get("id.id"), obj.ID),
		Name:           stringOr(item.Get("name"), unknownItemName),
		ImageURL:       stringOr(item.Get("url"), stringOr(item.Get("image_url"), "")),
		Description:    stringOr(item.Get("description"), ""),
		PriceBaseUnits: p.price(obj.ID, fields.Get("price")),
	}
	rec.PriceDisplay = ToDisplay(rec.PriceBaseUnits)
	return rec
}

// price reads a base-unit price encoded as a string or a number. Missing
// prices read as zero.
func (p *Projector) price(id string, v gjson.Result) uint64 {
	if !v.Exists() {
		return 0
	}
	raw := v.String()
	if v.Type == gjson.Number {
		raw = v.Raw
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		util.Sugar(p.Log).Warnw("listing_price_unreadable", "id", id, "price", raw)
		return 0
	}
	return n
}

// ProjectOwnedItems flattens pages into unique owned items, last-seen wins.
func (p *Projector) ProjectOwnedItems(pages []ledger.Page) []OwnedItemRecord {
	var out []OwnedItemRecord
	pos := make(map[string]int)
	for _, page := range pages {
		for _, obj := range page.Items {
			if !p.accept(obj) {
				continue
			}
			fields := gjson.ParseBytes(obj.Fields)
			rec := OwnedItemRecord{
				ID:          obj.ID,
				Name:        stringOr(fields.Get("name"), obj.ID),
				ImageURL:    stringOr(fields.Get("image_url"), stringOr(fields.Get("url"), "")),
				Description: stringOr(fields.Get("description"), ""),
			}
			if i, ok := pos[rec.ID]; ok {
				out[i] = rec
				continue
			}
			pos[rec.ID] = len(out)
			out = append(out, rec)
		}
	}
	return out
}

func stringOr(v gjson.Result, fallback string) string {
	if v.Type == gjson.String && v.Str != "" {
		return v.Str
	}
	return fallback
}
