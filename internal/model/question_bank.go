package model

// LibraryIndexItem describes one difficulty in the library index.
// A hybrid difficulty has no bank file of its own and draws from the two
// difficulties listed in HybridOf.
type LibraryIndexItem struct {
	ID               string   `json:"id" yaml:"id"`
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultQuestions int      `json:"default_questions" yaml:"default_questions"`
	TotalQuestions   int      `json:"total_questions" yaml:"total_questions"`
	HybridOf         []string `json:"hybrid_of,omitempty" yaml:"hybrid_of,omitempty"`
}

// IsHybrid reports whether the difficulty is composed of two other pools.
func (i LibraryIndexItem) IsHybrid() bool {
	return len(i.HybridOf) > 0
}
