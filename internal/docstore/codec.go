package docstore

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// canonical round-trips v through BSON so documents and filters built from
// different Go types compare the way MongoDB compares them.
func canonical(v any) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return m, nil
}

// decodeInto copies a canonical document into out.
func decodeInto(doc bson.M, out any) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// withID makes sure doc carries a string identifier and returns it.
func withID(doc bson.M, newID func() string) string {
	if id, ok := doc[IDField].(string); ok && id != "" {
		return id
	}
	id := newID()
	doc[IDField] = id
	return id
}

func newObjectID() string {
	return bson.NewObjectID().Hex()
}
