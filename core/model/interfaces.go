package model

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// Decoder builds a component from its state. The artifact package supplies
// one that consults its type registry, so nested components can be restored
// without importing each other's packages.
type Decoder func(s *State) (Stateful, error)

// Stateful is implemented by every component that can be persisted.
type Stateful interface {
	// TypeName is the fully qualified name written as the state's type tag.
	TypeName() string

	// ExportState captures the fitted state and hyperparameters.
	ExportState() (*State, error)

	// ImportState restores the receiver from s. Child states are built
	// through decode.
	ImportState(s *State, decode Decoder) error
}
