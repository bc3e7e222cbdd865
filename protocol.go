package setaside

import (
	"encoding/json"
)

// Inbound message types.
const (
	TypeListCollections   = "listCollections"
	TypeCreateCollection  = "createCollection"
	TypeRemoveItem        = "removeItem"
	TypeRestoreItem       = "restoreItem"
	TypeRemoveCollection  = "removeCollection"
	TypeRestoreCollection = "restoreCollection"
)

// Outbound message types.
const (
	TypeCollections       = "collections"
	TypeCollectionCreated = "collectionCreated"
	TypeCollectionRemoved = "collectionRemoved"
	TypeCollectionChanged = "collectionChanged"
	TypeError             = "error"
)

// Inbound is a request from a subscriber.
type Inbound struct {
	Type         string `json:"type"`
	CollectionID string `json:"collectionId,omitempty"`
	ItemID       string `json:"itemId,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Items        []Item `json:"items,omitempty"`
}

// Outbound is a reply or broadcast to subscribers. Which fields are set depends on
// Type.
type Outbound struct {
	Type         string
	Collections  []*Collection
	Collection   *Collection
	CollectionID string
	Request      string
	Message      string
}

// MarshalJSON emits only the fields belonging to the message type.
func (m Outbound) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeCollections:
		cols := m.Collections
		if cols == nil {
			cols = []*Collection{}
		}
		return json.Marshal(struct {
			Type        string        `json:"type"`
			Collections []*Collection `json:"collections"`
		}{m.Type, cols})
	case TypeCollectionCreated, TypeCollectionChanged:
		return json.Marshal(struct {
			Type       string      `json:"type"`
			Collection *Collection `json:"collection"`
		}{m.Type, m.Collection})
	case TypeCollectionRemoved:
		return json.Marshal(struct {
			Type         string `json:"type"`
			CollectionID string `json:"collectionId"`
		}{m.Type, m.CollectionID})
	case TypeError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Request string `json:"request"`
			Message string `json:"message"`
		}{m.Type, m.Request, m.Message})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{m.Type})
}

// CollectionsMessage replies to listCollections.
func CollectionsMessage(cols []*Collection) Outbound {
	return Outbound{Type: TypeCollections, Collections: cols}
}

// CreatedMessage announces a new collection.
func CreatedMessage(c *Collection) Outbound {
	return Outbound{Type: TypeCollectionCreated, Collection: c}
}

// ChangedMessage announces a collection's new contents.
func ChangedMessage(c *Collection) Outbound {
	return Outbound{Type: TypeCollectionChanged, Collection: c}
}

// RemovedMessage announces a collection's removal.
func RemovedMessage(id string) Outbound {
	return Outbound{Type: TypeCollectionRemoved, CollectionID: id}
}

// ErrorMessage tells the sender of request that it could not be carried out.
func ErrorMessage(request string, err error) Outbound {
	return Outbound{Type: TypeError, Request: request, Message: err.Error()}
}
