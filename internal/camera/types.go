package camera

import (
	"context"
	"fmt"
)

// FacingMode はどちらのカメラを使用するかを表す
type FacingMode string

const (
	// FacingFront は自分向き（ユーザー側）カメラを表す
	FacingFront FacingMode = "front"
	// FacingRear は外向き（環境側）カメラを表す
	FacingRear FacingMode = "rear"
)

// Opposite は反対側の向きを返す
func (f FacingMode) Opposite() FacingMode {
	if f == FacingFront {
		return FacingRear
	}
	return FacingFront
}

// FocusHint はストリーム取得時のフォーカス指定
type FocusHint string

const (
	// FocusHintNone はフォーカス指定なし
	FocusHintNone FocusHint = "none"
	// FocusHintContinuous は継続オートフォーカスを希望する
	FocusHintContinuous FocusHint = "continuous"
)

// Resolution はカメラの解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Capabilities はストリームの能力を表す
// フォーカス操作の前に必ずここを確認する
type Capabilities struct {
	FocusPointSupported  bool         // 手動ポイントフォーカスに対応しているか
	SupportedResolutions []Resolution // サポートされる解像度
	SupportedFormats     []string     // サポートされるフォーマット
}

// Stream はアクティブなカメラ映像への所有権付きハンドル
// 使い終わったら必ず Provider.Release で解放する
type Stream interface {
	// ID はハンドルの一意識別子を返す
	ID() string

	// Facing は取得時に指定した向きを返す
	Facing() FacingMode

	// Capabilities はストリームの能力を返す
	Capabilities() Capabilities

	// FrameChannel はライブフレーム（JPEG）のチャンネルを返す
	FrameChannel() <-chan []byte

	// LatestFrame は直近フレームのコピーをネイティブ解像度のJPEGで返す
	LatestFrame() ([]byte, error)

	// ApplyFocusPoint は正規化座標（0〜1）にフォーカスを合わせる
	// 能力チェックは呼び出し側（FocusController）の責務
	ApplyFocusPoint(ctx context.Context, x, y float64) error
}

// Provider はカメラストリームの取得・解放の唯一の窓口
// セッションごとにライブなハンドルは常に1つまで。向きの切り替えは
// 解放してから再取得であり、既存ハンドルの変更ではない
type Provider interface {
	// Acquire は指定された向きのストリームを取得する
	// 失敗はすべて PermissionError として返す
	Acquire(ctx context.Context, facing FacingMode, hint FocusHint) (Stream, error)

	// Release はストリームの全トラックを停止して解放する
	// 同じセッションで次のハンドルを取得する前に必ず呼ぶ
	Release(ctx context.Context, stream Stream) error
}

// PermissionError はカメラが取得できなかったことを表す
// 「デバイスが無い」と「利用を拒否された」の区別は保持しない
type PermissionError struct {
	Facing FacingMode // 取得しようとした向き
	Cause  error      // 元のエラー（ログ用）
}

// Error はエラーメッセージを返す
func (e *PermissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("カメラ（%s）を利用できません: %v", e.Facing, e.Cause)
	}
	return fmt.Sprintf("カメラ（%s）を利用できません", e.Facing)
}

// Unwrap は元のエラーを返す
func (e *PermissionError) Unwrap() error {
	return e.Cause
}

// NormalizePoint は表示座標を正規化座標（0〜1）に変換する
// 表示サイズが不正な場合は中央を返す
func NormalizePoint(x, y, displayWidth, displayHeight int) (float64, float64) {
	if displayWidth <= 0 || displayHeight <= 0 {
		return 0.5, 0.5
	}

	nx := clamp01(float64(x) / float64(displayWidth))
	ny := clamp01(float64(y) / float64(displayHeight))
	return nx, ny
}

// clamp01 は値を0〜1の範囲に収める
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
