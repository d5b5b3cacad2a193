package views

import (
	"context"

	"github.com/uhyunpark/objmarket/pkg/crypto"
	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

// OwnedItemsView lists the items held by one account.
type OwnedItemsView struct {
	*base[[]index.OwnedItemRecord]
	owner    string
	disabled *txflow.Error
}

// NewOwnedItemsView subscribes to item-minted and item-listed; a listed
// item leaves its owner's collection. Without an item type the view stays
// empty and disabled with a configuration banner.
func NewOwnedItemsView(bus *events.Bus, fetcher *index.Fetcher, owner, itemType string, opts Options) *OwnedItemsView {
	if owner != "" {
		owner = crypto.NormalizeAddress(owner)
	}
	proj := index.NewItemProjector(itemType, opts.Logger)
	fetch := func(ctx context.Context) ([]index.OwnedItemRecord, error) {
		if owner == "" {
			return nil, nil
		}
		pages, err := fetcher.FetchAll(ctx, owner, itemType)
		if err != nil {
			return nil, err
		}
		return proj.ProjectOwnedItems(pages), nil
	}
	v := &OwnedItemsView{
		base:  newBase("owned_items", "items/"+owner, "Failed to fetch NFTs", fetch, opts),
		owner: owner,
	}
	if itemType == "" {
		v.disabled = &txflow.Error{Kind: txflow.KindConfiguration, Message: "Set TYPE_NFT in env"}
		v.setBanner(v.disabled.Message)
		v.log.Warnw("owned_items_view_disabled", "reason", v.disabled.Message)
		return v
	}
	v.subscribe(bus, events.TopicItemMinted, events.TopicItemListed)
	return v
}

func (v *OwnedItemsView) Owner() string { return v.owner }

// Refresh refetches the owner's items. A disabled view returns its
// configuration error without touching the network.
func (v *OwnedItemsView) Refresh(ctx context.Context) error {
	if v.disabled != nil {
		return v.disabled
	}
	return v.refresh(ctx)
}

func (v *OwnedItemsView) Snapshot() State[[]index.OwnedItemRecord] { return v.snapshot() }

// Close stops the view from reacting to the bus.
func (v *OwnedItemsView) Close() { v.close() }

// Wait returns once bus-triggered refreshes started so far have finished.
func (v *OwnedItemsView) Wait() { v.wait() }

// Contains reports whether the owner currently holds id.
func (v *OwnedItemsView) Contains(id string) bool {
	for _, rec := range v.Snapshot().Records {
		if rec.ID == id {
			return true
		}
	}
	return false
}
