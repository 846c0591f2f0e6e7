package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は整数のクラスコードを持つ列ベクトル
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は各サンプルのクラスコードを (n_samples × 1) で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns probability estimates, one column per class in
	// the order of Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class codes seen during fitting.
	Classes() []int
}
