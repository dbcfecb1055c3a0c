package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"mekiki/internal/camera"
)

// testFrame はテスト用の小さなJPEGフレームを生成する
func testFrame(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("テストフレームの生成に失敗: %v", err)
	}
	return buf.Bytes()
}

// liveStream はフレームを設定済みのモックストリームを返す
func liveStream(t *testing.T, provider *camera.MockProvider, frame []byte) camera.Stream {
	t.Helper()

	stream, err := provider.Acquire(context.Background(), camera.FacingFront, camera.FocusHintNone)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	stream.(*camera.MockStream).SetFrame(frame)
	return stream
}

func TestEngine_Capture(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	provider := camera.NewMockProvider(false)
	stream := liveStream(t, provider, testFrame(t))

	img, err := engine.Capture(context.Background(), stream)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if img.ID == "" {
		t.Error("Expected image ID to be set")
	}
	if len(img.Data) == 0 {
		t.Error("Expected image data to be non-empty")
	}
	if img.MimeType != "image/jpeg" {
		t.Errorf("Expected mime type image/jpeg, got %s", img.MimeType)
	}

	// プレビューファイルが存在する
	if _, err := os.Stat(img.PreviewPath()); err != nil {
		t.Errorf("プレビューファイルが存在しません: %v", err)
	}

	// キャプチャした画像はJPEGとしてデコードできる
	if _, err := jpeg.Decode(bytes.NewReader(img.Data)); err != nil {
		t.Errorf("キャプチャ画像のデコードに失敗: %v", err)
	}
}

// TestEngine_CaptureDeterministic は同じフレームから同じバイト列が得られることを検証する
func TestEngine_CaptureDeterministic(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	provider := camera.NewMockProvider(false)
	stream := liveStream(t, provider, testFrame(t))

	img1, err := engine.Capture(context.Background(), stream)
	if err != nil {
		t.Fatalf("First capture failed: %v", err)
	}
	img2, err := engine.Capture(context.Background(), stream)
	if err != nil {
		t.Fatalf("Second capture failed: %v", err)
	}

	if !bytes.Equal(img1.Data, img2.Data) {
		t.Error("Expected identical bytes for identical frames")
	}
}

func TestEngine_CaptureWithoutFrame(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	provider := camera.NewMockProvider(false)
	stream, err := provider.Acquire(context.Background(), camera.FacingFront, camera.FocusHintNone)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// フレームが無い場合はエラー
	if _, err := engine.Capture(context.Background(), stream); err == nil {
		t.Error("Expected capture to fail without a frame")
	}
}

func TestEngine_FromUpload(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	data := testFrame(t)
	img, err := engine.FromUpload(data, "image/jpeg")
	if err != nil {
		t.Fatalf("FromUpload failed: %v", err)
	}

	if !bytes.Equal(img.Data, data) {
		t.Error("Expected uploaded data to be stored unmodified")
	}

	// 空データは拒否される
	if _, err := engine.FromUpload(nil, "image/jpeg"); err == nil {
		t.Error("Expected FromUpload to reject empty data")
	}
}

// TestImage_Release はプレビューファイルの解放を検証する
func TestImage_Release(t *testing.T) {
	engine, err := NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	img, err := engine.FromUpload(testFrame(t), "image/jpeg")
	if err != nil {
		t.Fatalf("FromUpload failed: %v", err)
	}

	previewPath := img.PreviewPath()
	if err := img.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if _, err := os.Stat(previewPath); !os.IsNotExist(err) {
		t.Error("プレビューファイルが削除されていません")
	}

	if img.PreviewPath() != "" {
		t.Error("Expected empty preview path after release")
	}

	// 二重解放は何もしない
	if err := img.Release(); err != nil {
		t.Errorf("Second release failed: %v", err)
	}
}
