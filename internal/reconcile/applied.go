package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gopkg.in/yaml.v3"
)

// applied records the static document the workload was last restarted
// with. It is written only once a restart succeeded, so a static file on
// disk without a matching record means the restart is still owed.
type applied struct {
	Digest string               `yaml:"digest"`
	Links  map[int]Contribution `yaml:"links,omitempty"`
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newApplied(plan *Plan) *applied {
	rec := &applied{Digest: digest(plan.StaticData)}
	if len(plan.Contributions) > 0 {
		rec.Links = plan.Contributions
	}
	return rec
}

// parseApplied decodes a record. A missing or unreadable record is empty.
func parseApplied(data []byte) *applied {
	rec := &applied{}
	if len(data) == 0 {
		return rec
	}
	if err := yaml.Unmarshal(data, rec); err != nil {
		return &applied{}
	}
	return rec
}

func (a *applied) marshal() ([]byte, error) {
	data, err := yaml.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to render applied record: %w", err)
	}
	return data, nil
}
