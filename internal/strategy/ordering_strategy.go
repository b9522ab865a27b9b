package strategy

import "fmt"

// Step is one collaborator call made while analysing an image
type Step string

const (
	StepAnnotate Step = "annotate"
	StepUpload   Step = "upload"
	StepPersist  Step = "persist"
)

// OrderingStrategy decides the order in which the analysis steps run.
// Persisting the history record is always the last step.
type OrderingStrategy interface {
	Steps() []Step
	GetStrategyName() string
}

// AnalyseFirstStrategy calls the vision API before touching storage, so a
// rejected image never leaves an object behind.
type AnalyseFirstStrategy struct{}

// NewAnalyseFirstStrategy creates the default ordering
func NewAnalyseFirstStrategy() OrderingStrategy {
	return AnalyseFirstStrategy{}
}

func (AnalyseFirstStrategy) Steps() []Step {
	return []Step{StepAnnotate, StepUpload, StepPersist}
}

func (AnalyseFirstStrategy) GetStrategyName() string {
	return "analyse_first"
}

// StoreFirstStrategy uploads before analysing. A vision failure leaves the
// uploaded object in place.
type StoreFirstStrategy struct{}

// NewStoreFirstStrategy creates the upload-first ordering
func NewStoreFirstStrategy() OrderingStrategy {
	return StoreFirstStrategy{}
}

func (StoreFirstStrategy) Steps() []Step {
	return []Step{StepUpload, StepAnnotate, StepPersist}
}

func (StoreFirstStrategy) GetStrategyName() string {
	return "store_first"
}

// ForName returns the strategy registered under name
func ForName(name string) (OrderingStrategy, error) {
	switch name {
	case "", "analyse_first":
		return NewAnalyseFirstStrategy(), nil
	case "store_first":
		return NewStoreFirstStrategy(), nil
	default:
		return nil, fmt.Errorf("unsupported analysis order: %s", name)
	}
}
