// Package camera カメラストリームの取得と解放を担う
//
// # 責務
// - カメラの向き（自分向き・外向き）に応じたストリームの取得
// - ストリームハンドルの解放（全トラックの停止）
// - ストリーム能力の問い合わせ（手動フォーカス対応など）
// - タップ位置へのベストエフォートなフォーカス適用
// - V4L2デバイスからのリアルタイム画像取得
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - セッションが使用するカメラストリームを取得・解放したい
// - 向きの切り替えで古いストリームを確実に停止したい
// - デバイスのフォーカス能力を確認してから操作したい
//
// # 仕様
// - Provider: ストリームの取得・解放の唯一の窓口
// - Stream: 所有権付きのストリームハンドル（解放必須）
// - FocusController: 能力チェック付きのフォーカス適用
// - V4L2 Provider: ffmpeg経由での画像キャプチャ
// - 取得失敗の原因（デバイス不在・権限拒否）は区別せず返す
//
// # 前提要件
//   - v4l-utils: デバイス制御とフォーカス操作に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャとストリーミングに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
