package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/drugpipe/core/model"
	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する。
// 欠損値(NaN)は統計量の計算から除外され、変換後もNaNのまま残る。
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（母標準偏差）
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	XScaled, err := scaler.FitTransform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	for j := 0; j < c; j++ {
		observed := observedColumn(X, j)
		if len(observed) == 0 {
			return errors.NewValueError("StandardScaler.Fit",
				fmt.Sprintf("column %d has no observed values", j))
		}

		m, std := stat.PopMeanStdDev(observed, nil)
		if s.WithMean {
			mean[j] = m
		}
		scale[j] = 1.0
		// 標準偏差が0に近い場合は1のまま（ゼロ除算を避ける）
		if s.WithStd && std >= 1e-8 {
			scale[j] = std
		}
	}

	s.Mean = mean
	s.Scale = scale
	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	nFeatures, _ := s.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", nFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	nFeatures, _ := s.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", nFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
		}
	}
	return result, nil
}

// IsFitted は学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

// GetParams はハイパーパラメータを返す
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, nFeatures)
}

type standardScalerData struct {
	model.ModelState
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// TypeName implements model.Stateful.
func (s *StandardScaler) TypeName() string { return TypeStandardScaler }

// ExportState implements model.Stateful.
func (s *StandardScaler) ExportState() (*model.State, error) {
	if err := s.state.RequireFitted("StandardScaler", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypeStandardScaler, s.GetParams())
	err := st.SetData(standardScalerData{ModelState: s.state.GetState(), Mean: s.Mean, Scale: s.Scale})
	return st, err
}

// ImportState implements model.Stateful.
func (s *StandardScaler) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeStandardScaler); err != nil {
		return err
	}
	var data standardScalerData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.Mean) != data.NFeatures || len(data.Scale) != data.NFeatures {
		return errors.NewValueError("StandardScaler.ImportState", "statistics do not match n_features")
	}

	s.state = model.NewStateManager()
	s.state.SetState(data.ModelState)
	s.WithMean = paramBool(st, "with_mean", true)
	s.WithStd = paramBool(st, "with_std", true)
	s.Mean = data.Mean
	s.Scale = data.Scale
	return nil
}

// MinMaxScaler は各特徴量を指定範囲（デフォルト[0, 1]）にスケーリングする。
// StandardScalerと同様にNaNは無視され、そのまま残る。
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin は各特徴量の最小値
	DataMin []float64

	// DataMax は各特徴量の最大値
	DataMax []float64

	// Scale は各特徴量の範囲（max - min、0に近い場合は1）
	Scale []float64

	// FeatureRange は変換後の範囲
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault は範囲[0, 1]のMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は各特徴量の最小値と最大値を学習する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}

	dataMin := make([]float64, c)
	dataMax := make([]float64, c)
	scale := make([]float64, c)
	for j := 0; j < c; j++ {
		observed := observedColumn(X, j)
		if len(observed) == 0 {
			return errors.NewValueError("MinMaxScaler.Fit",
				fmt.Sprintf("column %d has no observed values", j))
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range observed {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		dataMin[j], dataMax[j] = lo, hi
		scale[j] = hi - lo
		if math.Abs(scale[j]) < 1e-8 {
			scale[j] = 1.0
		}
	}

	m.DataMin, m.DataMax, m.Scale = dataMin, dataMax, scale
	m.state.SetDimensions(c, r)
	m.state.SetFitted()
	return nil
}

// Transform は学習済みの範囲でデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "Transform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	nFeatures, _ := m.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.Transform", nFeatures, c, 1)
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-m.DataMin[j])/m.Scale[j]*width+m.FeatureRange[0])
		}
	}
	return result, nil
}

// FitTransform は学習と変換を同時に行う
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "InverseTransform"); err != nil {
		return nil, err
	}

	r, c := X.Dims()
	nFeatures, _ := m.state.GetDimensions()
	if c != nFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.InverseTransform", nFeatures, c, 1)
	}

	width := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-m.FeatureRange[0])/width*m.Scale[j]+m.DataMin[j])
		}
	}
	return result, nil
}

// IsFitted は学習済みかどうかを返す
func (m *MinMaxScaler) IsFitted() bool {
	return m.state.IsFitted()
}

// GetParams はハイパーパラメータを返す
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_min": m.FeatureRange[0],
		"feature_max": m.FeatureRange[1],
	}
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])", m.FeatureRange[0], m.FeatureRange[1])
}

type minMaxScalerData struct {
	model.ModelState
	DataMin []float64 `json:"data_min"`
	DataMax []float64 `json:"data_max"`
	Scale   []float64 `json:"scale"`
}

// TypeName implements model.Stateful.
func (m *MinMaxScaler) TypeName() string { return TypeMinMaxScaler }

// ExportState implements model.Stateful.
func (m *MinMaxScaler) ExportState() (*model.State, error) {
	if err := m.state.RequireFitted("MinMaxScaler", "ExportState"); err != nil {
		return nil, err
	}
	st := model.NewState(TypeMinMaxScaler, m.GetParams())
	err := st.SetData(minMaxScalerData{
		ModelState: m.state.GetState(),
		DataMin:    m.DataMin,
		DataMax:    m.DataMax,
		Scale:      m.Scale,
	})
	return st, err
}

// ImportState implements model.Stateful.
func (m *MinMaxScaler) ImportState(st *model.State, _ model.Decoder) error {
	if err := st.Expect(TypeMinMaxScaler); err != nil {
		return err
	}
	var data minMaxScalerData
	if err := st.DecodeData(&data); err != nil {
		return err
	}
	if len(data.DataMin) != data.NFeatures || len(data.Scale) != data.NFeatures {
		return errors.NewValueError("MinMaxScaler.ImportState", "statistics do not match n_features")
	}

	m.state = model.NewStateManager()
	m.state.SetState(data.ModelState)
	m.FeatureRange = [2]float64{st.ParamFloat("feature_min", 0), st.ParamFloat("feature_max", 1)}
	m.DataMin, m.DataMax, m.Scale = data.DataMin, data.DataMax, data.Scale
	return nil
}

// observedColumn は列jのNaNでない値を返す
func observedColumn(X mat.Matrix, j int) []float64 {
	r, _ := X.Dims()
	out := make([]float64, 0, r)
	for i := 0; i < r; i++ {
		if v := X.At(i, j); !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func paramBool(st *model.State, key string, def bool) bool {
	if v, ok := st.Params[key].(bool); ok {
		return v
	}
	return def
}
