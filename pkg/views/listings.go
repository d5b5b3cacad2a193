package views

import (
	"context"

	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

// ListingsView shows every active listing held by the marketplace address.
type ListingsView struct {
	*base[[]index.ListingRecord]
	disabled *txflow.Error
}

// NewListingsView subscribes to item-listed, listing-changed and the
// periodic listings-refresh. A bad marketplace address or a missing listing
// type leaves the view disabled with a configuration banner.
func NewListingsView(bus *events.Bus, fetcher *index.Fetcher, marketplace, listingType string, opts Options) *ListingsView {
	disabled := listingsConfigProblem(marketplace, listingType)
	if disabled == nil {
		marketplace = crypto.NormalizeAddress(marketplace)
	}
	proj := index.NewListingProjector(listingType, opts.Logger)
	fetch := func(ctx context.Context) ([]index.ListingRecord, error) {
		pages, err := fetcher.FetchAll(ctx, marketplace, listingType)
		if err != nil {
			return nil, err
		}
		return proj.ProjectListings(pages), nil
	}

	v := &ListingsView{
		base:     newBase("listings", "listings/"+marketplace, "Failed to load listings. Please try again.", fetch, opts),
		disabled: disabled,
	}
	if disabled != nil {
		v.setBanner(disabled.Message)
		v.log.Warnw("listings_view_disabled", "reason", disabled.Message)
		return v
	}
	v.subscribe(bus, events.TopicItemListed, events.TopicListingChanged, events.TopicListingsRefresh)
	return v
}

func listingsConfigProblem(marketplace, listingType string) *txflow.Error {
	if !crypto.IsValidAddress(marketplace) {
		return &txflow.Error{Kind: txflow.KindConfiguration, Message: "Set MARKETPLACE_ADDRESS in env"}
	}
	if listingType == "" {
		return &txflow.Error{Kind: txflow.KindConfiguration, Message: "Set TYPE_LISTING in env"}
	}
	return nil
}

// Refresh refetches every page. A disabled view returns its configuration
// error without touching the network.
func (v *ListingsView) Refresh(ctx context.Context) error {
	if v.disabled != nil {
		return v.disabled
	}
	return v.refresh(ctx)
}

func (v *ListingsView) Snapshot() State[[]index.ListingRecord] { return v.snapshot() }

func (v *ListingsView) Close() { v.close() }

func (v *ListingsView) Wait() { v.wait() }

// Disabled returns the configuration problem that keeps the view idle.
func (v *ListingsView) Disabled() error {
	if v.disabled == nil {
		return nil
	}
	return v.disabled
}

// Find returns the listing with the given id.
func (v *ListingsView) Find(id string) (index.ListingRecord, bool) {
	for _, rec := range v.Snapshot().Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return index.ListingRecord{}, false
}
