// Package drugpipe trains a classifier that predicts which of five drugs a
// patient responds to, from age, sex, blood pressure, cholesterol and the
// sodium to potassium ratio.
//
// The work is a single batch run, started with cmd/train:
//
//	train -config config.yaml
//
// The run loads ./Data/drug.csv, shuffles it, holds out 30% of the rows,
// fits a pipeline (ordinal encoding for categorical columns, median
// imputation and standard scaling for numeric columns, a 100-tree random
// forest) and then:
//
//   - renders the confusion matrix to ./Results/model_results.png
//   - appends "Accuracy = ..., F1 Score = ..." to ./Results/metrics.txt
//   - saves the fitted pipeline to ./Model/drug_pipeline.json
//
// The saved pipeline can be loaded again in any Go program:
//
//	pipe, err := artifact.Load("Model/drug_pipeline.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	labels, err := pipe.Predict(frame)
//
// # Packages
//
//   - dataset: CSV loading, typed feature frames, synthetic drug records
//   - preprocessing: OrdinalEncoder, SimpleImputer, StandardScaler,
//     MinMaxScaler, LabelEncoder and the ColumnTransformer that combines them
//   - sklearn/tree, sklearn/ensemble: CART decision tree and random forest
//   - sklearn/model_selection: seeded train/test split
//   - pipeline: transformer, label encoding and classifier as one unit
//   - metrics, evaluation: accuracy, F1, confusion matrix, report files
//   - artifact: trust-checked JSON persistence of fitted components
//   - runstore: optional SQLite history of runs
//   - config, workflow: YAML configuration and the staged training run
//   - core/model, core/parallel, pkg/errors, pkg/log: shared interfaces,
//     worker pool, typed errors and structured logging
package drugpipe
