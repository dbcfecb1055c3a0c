package camera

import (
	"context"
	"log"
)

// FocusController はタップ位置へのフォーカス適用を担う
// ポイントフォーカスは任意能力であり、対応していないストリームでは
// 何もしない（エラーではない）
type FocusController struct{}

// NewFocusController は新しいFocusControllerを作成する
func NewFocusController() *FocusController {
	return &FocusController{}
}

// Apply は表示座標のタップ位置にフォーカスを合わせ、正規化座標を返す
// 適用の失敗はログに残すだけで、呼び出し側には伝えない
func (c *FocusController) Apply(ctx context.Context, stream Stream, x, y, displayWidth, displayHeight int) (float64, float64) {
	nx, ny := NormalizePoint(x, y, displayWidth, displayHeight)

	if stream == nil {
		return nx, ny
	}

	// 能力が無ければ静かに何もしない
	if !stream.Capabilities().FocusPointSupported {
		return nx, ny
	}

	if err := stream.ApplyFocusPoint(ctx, nx, ny); err != nil {
		log.Printf("フォーカスの適用に失敗しました（無視します）: %v", err)
	}

	return nx, ny
}
