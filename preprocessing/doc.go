// Package preprocessing provides scikit-learn style feature transformers:
// OrdinalEncoder for categorical columns, SimpleImputer, StandardScaler and
// MinMaxScaler for numeric columns, LabelEncoder for class labels, and
// ColumnTransformer to apply them to column subsets of a dataset.Frame.
//
// Missing values travel as NaN in numeric data and as "" in categorical
// data. Every transformer learns its statistics in Fit and never changes
// them in Transform.
package preprocessing

// Type names written into persisted component states.
const (
	TypeOrdinalEncoder    = "drugpipe.preprocessing.OrdinalEncoder"
	TypeSimpleImputer     = "drugpipe.preprocessing.SimpleImputer"
	TypeStandardScaler    = "drugpipe.preprocessing.StandardScaler"
	TypeMinMaxScaler      = "drugpipe.preprocessing.MinMaxScaler"
	TypeLabelEncoder      = "drugpipe.preprocessing.LabelEncoder"
	TypeColumnTransformer = "drugpipe.preprocessing.ColumnTransformer"
)
