package model

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// WriteJSONFile は v を JSON として path に書き出す。
// 同じディレクトリの一時ファイルに書いてから rename するため、
// 既存のファイルは完全に置き換わるか、そのまま残るかのどちらかになる。
//
// 使用例:
//
//	err := model.WriteJSONFile("Model/drug_pipeline.json", envelope)
func WriteJSONFile(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode model")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to flush model")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move model into %s", path)
	}
	return nil
}

// ReadJSONFile は path の JSON を v に読み込む
func ReadJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open file %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}
