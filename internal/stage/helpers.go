package stage

import (
	"encoding/json"

	"melt/internal/ncm"
	"melt/internal/queue"
	"melt/internal/services"
)

// ParseMetadata decodes the metadata payload stored on a queue item.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func ParseMetadata(item *queue.Item) (*ncm.Metadata, error) {
	if item.MetadataJSON == "" {
		return nil, nil
	}
	var meta ncm.Metadata
	if err := json.Unmarshal([]byte(item.MetadataJSON), &meta); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse metadata",
			"Stored track metadata is invalid; reconvert the item", err)
	}
	return &meta, nil
}
