package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/ridecast/pkg/errors"
)

// Envelope は永続化されるモデルの外枠
//
// Model にはgob.Registerされた具象型（*linear.LinearRegression など）が入る。
type Envelope struct {
	Variant       string    // バリアント名（例: "RandomForest"）
	Kind          string    // 具象型の識別子（例: "ensemble.RandomForestRegressor"）
	SchemaVersion int       // 特徴量スキーマのバージョン
	Model         Regressor // 学習済みモデル
}

// Register はモデル型をgobに登録する。各モデルパッケージのinitから呼ばれる
func Register(name string, value Regressor) {
	gob.RegisterName(name, value)
}

// SaveModelToWriter はモデルをio.Writerに保存する
//
// 使用例:
//
//	env := model.Envelope{Variant: "LinearRegression", Kind: "linear.LinearRegression", Model: reg}
//	err := model.SaveModelToWriter(&env, w)
func SaveModelToWriter(env *Envelope, w io.Writer) error {
	if env == nil || env.Model == nil {
		return errors.NewValueError("SaveModelToWriter", "envelope has no model")
	}
	if !env.Model.IsFitted() {
		return errors.NewNotFittedError(env.Kind, "SaveModelToWriter")
	}
	if err := gob.NewEncoder(w).Encode(env); err != nil {
		return errors.Wrapf(err, "failed to encode model %s", env.Variant)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, errors.Wrap(err, "failed to decode model")
	}
	if env.Model == nil {
		return nil, errors.NewValueError("LoadModelFromReader", "decoded envelope has no model")
	}
	return &env, nil
}
