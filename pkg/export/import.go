package export

import (
	"context"
	"encoding/json"
	"io"

	"bionexus/pkg/common"
	"bionexus/pkg/store"
)

// ImportEntities loads an entities JSON export back into the graph store
// and returns how many entities were written. Re-importing an export into
// the store it came from is a no-op thanks to merge-by-key writes.
func ImportEntities(ctx context.Context, graph store.GraphStore, r io.Reader) (int, error) {
	var envelope entitiesEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return 0, common.Validation("entities", "malformed export: "+err.Error())
	}

	for _, entity := range envelope.Entities {
		if entity.ID == "" || entity.Name == "" {
			return 0, common.Validation("entities", "entity missing id or name")
		}
		if !entity.Type.Valid() {
			return 0, common.Validation("entities", "unknown entity type "+string(entity.Type))
		}
	}

	if err := graph.UpsertEntities(ctx, envelope.Entities); err != nil {
		return 0, common.Transient("import entities", err)
	}
	return len(envelope.Entities), nil
}
