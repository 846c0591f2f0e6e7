package model

import "gonum.org/v1/gonum/mat"

// Transformer は数値列の変換のインターフェース
type Transformer interface {
	// Fit は変換に必要な統計量を学習する
	Fit(X mat.Matrix) error

	// Transform は学習済みの統計量でデータを変換する。学習済みの状態は変更しない
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// CategoricalTransformer は文字列の列を数値に変換するインターフェース。
// 欠損値は空文字列で表す。
type CategoricalTransformer interface {
	Fit(X [][]string) error
	Transform(X [][]string) (mat.Matrix, error)
}
