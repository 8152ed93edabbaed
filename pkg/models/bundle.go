package models

import "fmt"

// CleaningStats records what data preparation removed from the raw extract.
type CleaningStats struct {
	OriginalRows            int      `json:"original_rows"`
	OriginalCols            int      `json:"original_cols"`
	RemovedForNaN           int      `json:"removed_for_nan"`
	RemovedForZeroThreshold int      `json:"removed_for_zero_threshold"`
	RemovedEntityLabels     []string `json:"removed_entity_labels"`
	HadInvalidValues        bool     `json:"had_invalid_values"`
}

// ClusterModel is the serialized form of a fitted clustering model.
// Centroids are in the scaled space the model was trained in.
type ClusterModel struct {
	Metric    string      `json:"metric"`
	K         int         `json:"k"`
	Centroids [][]float64 `json:"centroids"`
}

// Bundle is the persisted training artifact. It is self-describing: consumers
// can tell which entities the model covers without re-running cleaning.
type Bundle struct {
	Model         *ClusterModel  `json:"model"`
	Scaler        string         `json:"scaler"`
	K             int            `json:"k"`
	Silhouette    float64        `json:"silhouette"`
	Params        TrainingParams `json:"params"`
	EntityLabels  []string       `json:"entity_labels"`
	CleaningStats *CleaningStats `json:"cleaning_stats,omitempty"`
}

// Validate checks the required fields. CleaningStats may be absent on bundles
// written by older versions and is not required.
func (b *Bundle) Validate() error {
	if b.Model == nil || len(b.Model.Centroids) == 0 {
		return fmt.Errorf("bundle has no model")
	}
	if b.Scaler == "" {
		return fmt.Errorf("bundle has no scaler identifier")
	}
	if b.K < 2 {
		return fmt.Errorf("bundle has invalid cluster count %d", b.K)
	}
	if err := b.Params.Validate(); err != nil {
		return fmt.Errorf("bundle params: %w", err)
	}
	return nil
}
