package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// StateVersion はコンポーネント状態のスキーマバージョン
const StateVersion = 1

// State はコンポーネントの状態を表す構造体（シリアライゼーション用）。
// 木構造になっており、Pipeline の下に ColumnTransformer や分類器がぶら下がる。
type State struct {
	// Type はコンポーネントの完全修飾名（例: drugpipe.tree.DecisionTreeClassifier）
	Type string `json:"__type__"`

	// Version は状態スキーマのバージョン（互換性チェック用）
	Version int `json:"version"`

	// Params はハイパーパラメータ
	Params map[string]interface{} `json:"params,omitempty"`

	// Data は学習済みの統計量。形式はコンポーネントごとに異なる
	Data json.RawMessage `json:"data,omitempty"`

	// Children は入れ子のコンポーネント
	Children []NamedState `json:"children,omitempty"`
}

// NamedState は名前付きの子コンポーネント
type NamedState struct {
	Name  string `json:"name"`
	State *State `json:"state"`
}

// NewState は指定した型名とパラメータで State を作成する
func NewState(typeName string, params map[string]interface{}) *State {
	return &State{Type: typeName, Version: StateVersion, Params: params}
}

// SetData は学習済みの統計量を JSON として格納する
func (s *State) SetData(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode state of %s", s.Type)
	}
	s.Data = data
	return nil
}

// DecodeData は格納された統計量を v に復元する
func (s *State) DecodeData(v interface{}) error {
	if len(s.Data) == 0 {
		return errors.NewValueError(s.Type, "state has no data")
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return errors.Wrapf(err, "failed to decode state of %s", s.Type)
	}
	return nil
}

// AddChild は子コンポーネントの状態を追加する
func (s *State) AddChild(name string, child *State) {
	s.Children = append(s.Children, NamedState{Name: name, State: child})
}

// Child は名前で子コンポーネントの状態を探す
func (s *State) Child(name string) (*State, error) {
	for _, c := range s.Children {
		if c.Name == name {
			return c.State, nil
		}
	}
	return nil, errors.NewValueError(s.Type, fmt.Sprintf("state has no child %q", name))
}

// Expect は型名とバージョンを検証する
func (s *State) Expect(typeName string) error {
	if s == nil {
		return errors.NewValueError(typeName, "state is nil")
	}
	if s.Type != typeName {
		return errors.NewValueError(typeName, fmt.Sprintf("state has type %q", s.Type))
	}
	if s.Version != StateVersion {
		return errors.NewValueError(typeName, fmt.Sprintf("unsupported state version %d", s.Version))
	}
	return nil
}

// Walk は s とすべての子孫を深さ優先で訪問する
func (s *State) Walk(fn func(*State) error) error {
	if s == nil {
		return nil
	}
	if err := fn(s); err != nil {
		return err
	}
	for _, c := range s.Children {
		if err := c.State.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Types は木に現れる型名をソートして重複なしで返す
func (s *State) Types() []string {
	seen := make(map[string]struct{})
	_ = s.Walk(func(n *State) error {
		seen[n.Type] = struct{}{}
		return nil
	})
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ParamString は文字列パラメータを取り出す
func (s *State) ParamString(key, def string) string {
	if v, ok := s.Params[key].(string); ok {
		return v
	}
	return def
}

// ParamInt は整数パラメータを取り出す。JSON を経由すると数値は float64 になる
func (s *State) ParamInt(key string, def int) int {
	switch v := s.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// ParamFloat は浮動小数点パラメータを取り出す
func (s *State) ParamFloat(key string, def float64) float64 {
	switch v := s.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
