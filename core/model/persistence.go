package model

import (
	"encoding/gob"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/YuminosukeSato/advnet/pkg/errors"
)

// SaveGob は値を gob 形式でファイルに保存する
// 一時ファイルに書き込んでからリネームするため、途中で中断しても既存のファイルは壊れない
//
// パラメータ:
//   - fs: 保存先のファイルシステム
//   - value: 保存する値（NetworkWeights やオプティマイザ状態を含む構造体）
//   - filename: 保存先のファイルパス
//
// 使用例:
//
//	err := model.SaveGob(afero.NewOsFs(), snapshot, "ckpt/simulator/params.gob")
func SaveGob(fs afero.Fs, value interface{}, filename string) error {
	if err := fs.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", filename)
	}

	tmp := filename + ".tmp"
	file, err := fs.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", tmp)
	}

	if err := SaveToWriter(value, file); err != nil {
		_ = file.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrapf(err, "failed to close %s", tmp)
	}

	if err := fs.Rename(tmp, filename); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", filename)
	}
	return nil
}

// LoadGob はファイルから gob 形式の値を読み込む
//
// パラメータ:
//   - fs: 読み込み元のファイルシステム
//   - value: 読み込み先（ポインタ）
//   - filename: 読み込み元のファイルパス
func LoadGob(fs afero.Fs, value interface{}, filename string) error {
	file, err := fs.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()

	return LoadFromReader(value, file)
}

// SaveToWriter は値をio.Writerに保存する
func SaveToWriter(value interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(value); err != nil {
		return errors.Wrap(err, "failed to encode")
	}
	return nil
}

// LoadFromReader はio.Readerから値を読み込む
func LoadFromReader(value interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(value); err != nil {
		return errors.Wrap(err, "failed to decode")
	}
	return nil
}
