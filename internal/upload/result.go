package upload

import "strings"

// 折りたたみ表示で見せる最大文字数
const collapsedTextLimit = 150

// AnalysisResult は判定エンドポイントが返す解析結果
type AnalysisResult struct {
	// Text は画像から抽出されたテキスト（無い場合は空）
	Text string `json:"text,omitempty"`

	// Classification はラベルごとの判定結果
	Classification map[string]bool `json:"classification,omitempty"`
}

// 改行を空白1つに置き換える
var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// CollapsedText は折りたたみ表示用のテキストを返す
// 改行を潰して先頭150文字に切り詰め、切り詰めた場合は省略記号を付ける
// 元のテキストはTextフィールドにそのまま残る
func (r *AnalysisResult) CollapsedText() string {
	flattened := newlineReplacer.Replace(r.Text)

	runes := []rune(flattened)
	if len(runes) <= collapsedTextLimit {
		return flattened
	}

	return string(runes[:collapsedTextLimit]) + "…"
}

// Truncated は折りたたみ表示で切り詰めが発生するかどうかを返す
func (r *AnalysisResult) Truncated() bool {
	return len([]rune(newlineReplacer.Replace(r.Text))) > collapsedTextLimit
}
