// Package capture ライブストリームからの静止画キャプチャを担う
//
// キャプチャした画像はプレビュー用のファイルハンドルを所有する。
// 新しい画像に置き換えるとき、古い画像のReleaseは呼び出し側の責務。
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"mekiki/internal/camera"
)

// JPEGの再エンコード品質
const jpegQuality = 90

// Image はキャプチャまたは選択された1枚の静止画を表す
// プレビューファイルを所有し、不要になったらReleaseで解放する
type Image struct {
	ID       string // 画像の一意識別子
	Data     []byte // エンコード済みの画像データ
	MimeType string // 画像のMIMEタイプ

	mu          sync.Mutex
	previewPath string
	released    bool
}

// PreviewPath はプレビューファイルのパスを返す
// 解放済みの場合は空文字列を返す
func (img *Image) PreviewPath() string {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.released {
		return ""
	}
	return img.previewPath
}

// Release はプレビューファイルを削除する
// 二重解放は何もしない
func (img *Image) Release() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.released {
		return nil
	}
	img.released = true

	if img.previewPath == "" {
		return nil
	}

	if err := os.Remove(img.previewPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("プレビューファイルの削除に失敗: %w", err)
	}

	return nil
}

// Engine はライブストリームからの静止画キャプチャを担う
// 過去のImageは所有しない
type Engine struct {
	previewDir string
}

// NewEngine は新しいEngineを作成する
// プレビューファイルの作業ディレクトリを用意する
func NewEngine(previewDir string) (*Engine, error) {
	if err := os.MkdirAll(previewDir, 0o755); err != nil {
		return nil, fmt.Errorf("プレビューディレクトリの作成に失敗: %w", err)
	}

	return &Engine{previewDir: previewDir}, nil
}

// Capture はライブストリームの現在フレームを静止画としてキャプチャする
// フレームはソースのネイティブ解像度でサンプリングし、JPEGに再エンコードする
// 同じフレームからは同じバイト列が得られる
func (e *Engine) Capture(_ context.Context, stream camera.Stream) (*Image, error) {
	frame, err := stream.LatestFrame()
	if err != nil {
		return nil, fmt.Errorf("フレームの取得に失敗: %w", err)
	}

	// ピクセルバッファへデコードしてから静止画として再エンコードする
	decoded, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("フレームのデコードに失敗: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, decoded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("静止画のエンコードに失敗: %w", err)
	}

	return e.newImage(buf.Bytes(), "image/jpeg")
}

// FromUpload はユーザーが選択したファイルをImageとして取り込む
// 所有権のルールはキャプチャした画像と同じ
func (e *Engine) FromUpload(data []byte, mimeType string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("画像データが空です")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return e.newImage(data, mimeType)
}

// newImage は画像データからImageとプレビューファイルを作成する
func (e *Engine) newImage(data []byte, mimeType string) (*Image, error) {
	id := uuid.New().String()
	previewPath := filepath.Join(e.previewDir, id+previewExt(mimeType))

	if err := os.WriteFile(previewPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("プレビューファイルの書き込みに失敗: %w", err)
	}

	return &Image{
		ID:          id,
		Data:        data,
		MimeType:    mimeType,
		previewPath: previewPath,
	}, nil
}

// previewExt はMIMEタイプに対応する拡張子を返す
func previewExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
