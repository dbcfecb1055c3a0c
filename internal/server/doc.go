// Package server は、撮影セッションを操作するHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// セッション操作APIの提供、ライブ映像の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - セッション状態の取得と操作（切り替え・撮影・送信など）の受け付け
//   - MJPEGによるライブプレビューの配信
//   - 埋め込みビューアページの配信
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - グレースフルシャットダウンに対応（終了時にセッションも解放）
//   - ストリーム操作はすべてセッションコントローラ経由で行う
package server
