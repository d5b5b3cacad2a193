package ledger

import "encoding/json"

// Wire shapes of the fullnode JSON-RPC API. Exported so an in-process
// rpc.Server can speak the same format in tests.

type ObjectDataOptions struct {
	ShowType    bool `json:"showType"`
	ShowContent bool `json:"showContent"`
	ShowOwner   bool `json:"showOwner,omitempty"`
}

type ObjectFilter struct {
	StructType string `json:"StructType,omitempty"`
}

type OwnedObjectsQuery struct {
	Filter  *ObjectFilter     `json:"filter,omitempty"`
	Options ObjectDataOptions `json:"options"`
}

type MoveContent struct {
	DataType string          `json:"dataType"`
	Type     string          `json:"type,omitempty"`
	Fields   json.RawMessage `json:"fields,omitempty"`
}

type ObjectData struct {
	ObjectID string          `json:"objectId"`
	Version  string          `json:"version,omitempty"`
	Digest   string          `json:"digest,omitempty"`
	Type     string          `json:"type,omitempty"`
	Owner    json.RawMessage `json:"owner,omitempty"`
	Content  *MoveContent    `json:"content,omitempty"`
}

type ObjectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id,omitempty"`
}

type ObjectResponse struct {
	Data  *ObjectData  `json:"data,omitempty"`
	Error *ObjectError `json:"error,omitempty"`
}

type OwnedObjectsPage struct {
	Data        []ObjectResponse `json:"data"`
	NextCursor  *string          `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

type BalanceResponse struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

type TransactionOptions struct {
	ShowEffects bool `json:"showEffects"`
}

type ObjectRef struct {
	ObjectID string          `json:"objectId"`
	Version  json.RawMessage `json:"version,omitempty"`
	Digest   string          `json:"digest,omitempty"`
}

type OwnedObjectRef struct {
	Owner     json.RawMessage `json:"owner"`
	Reference ObjectRef       `json:"reference"`
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type TransactionEffects struct {
	Status  ExecutionStatus  `json:"status"`
	Created []OwnedObjectRef `json:"created,omitempty"`
}

type TransactionResponse struct {
	Digest  string              `json:"digest,omitempty"`
	Effects *TransactionEffects `json:"effects,omitempty"`
}

// toRemoteObject flattens a wire object. The declared type comes from the
// object itself, falling back to the content type.
func (d *ObjectData) toRemoteObject() RemoteObject {
	obj := RemoteObject{
		ID:      d.ObjectID,
		Version: d.Version,
		Digest:  d.Digest,
		Type:    d.Type,
		Owner:   ownerAddress(d.Owner),
	}
	if d.Content != nil {
		if obj.Type == "" {
			obj.Type = d.Content.Type
		}
		obj.Fields = d.Content.Fields
	}
	return obj
}

// ownerAddress extracts the address from {"AddressOwner": "0x.."} or
// {"ObjectOwner": "0x.."}; shared and immutable owners yield "".
func ownerAddress(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var owner struct {
		AddressOwner string `json:"AddressOwner"`
		ObjectOwner  string `json:"ObjectOwner"`
	}
	if err := json.Unmarshal(raw, &owner); err != nil {
		return ""
	}
	if owner.AddressOwner != "" {
		return owner.AddressOwner
	}
	return owner.ObjectOwner
}
