package api

import (
	"time"

	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/txflow"
	"github.com/uhyunpark/objmarket/pkg/views"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// ListingsResponse is the marketplace view as of its last refresh
type ListingsResponse struct {
	Listings  []index.ListingRecord `json:"listings"`
	Loading   bool                  `json:"loading"`
	Error     string                `json:"error,omitempty"`
	Banner    string                `json:"banner,omitempty"` // configuration problem, view disabled
	UpdatedAt time.Time             `json:"updatedAt,omitempty"`
}

// ItemsResponse lists the items an account owns
type ItemsResponse struct {
	Address string                  `json:"address"`
	Items   []index.OwnedItemRecord `json:"items"`
}

// BalanceResponse is an account's gas-coin balance
type BalanceResponse struct {
	Address   string `json:"address"`
	BaseUnits uint64 `json:"baseUnits"`
	Display   string `json:"display"` // 4 decimal places
}

// ConfigStatus reports missing configuration as banner messages
type ConfigStatus struct {
	Network  string   `json:"network"`
	RPCURL   string   `json:"rpcUrl"`
	Signer   string   `json:"signer,omitempty"` // connected account address
	Operator bool     `json:"operator"`
	Problems []string `json:"problems"`
}

// LifecycleList is the most recent lifecycles, newest first
type LifecycleList struct {
	Lifecycles []txflow.Snapshot `json:"lifecycles"`
}

// ErrorResponse is returned for all API errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func listingsResponse(st views.State[[]index.ListingRecord]) ListingsResponse {
	listings := st.Records
	if listings == nil {
		listings = []index.ListingRecord{}
	}
	return ListingsResponse{
		Listings:  listings,
		Loading:   st.Loading,
		Error:     st.Error,
		Banner:    st.Banner,
		UpdatedAt: st.UpdatedAt,
	}
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage topic subscriptions.
// Channels are bus topic names such as "item-listed".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSAck confirms a subscription change
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// RefreshMessage tells a client that data behind topic probably changed
type RefreshMessage struct {
	Type      string `json:"type"` // always "refresh"
	Topic     string `json:"topic"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}
