package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。yは列ベクトル(n×1)
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う。戻り値はn×1
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Regressor は回帰モデルの能力。パイプラインの各バリアントはこれを満たす
type Regressor interface {
	Fitter
	Predictor
	IsFitted() bool
}

// FeatureImporter は学習済みモデルの特徴量重要度を返せるモデル
type FeatureImporter interface {
	// GetFeatureImportances は列順の重要度を返す。合計は1
	GetFeatureImportances() []float64
}
