// Package dataset loads delimited tabular data into memory and separates
// the feature columns from the label column.
//
// A Table keeps the raw string records exactly as read. Features infers a
// kind per column: numeric when every non-missing cell parses as a float,
// categorical otherwise. Missing cells ("", "NA", "NaN", "null") become NaN
// in numeric columns and "" in categorical ones.
//
// Every row operation goes through one index permutation so the feature rows
// and the label vector stay aligned.
package dataset
