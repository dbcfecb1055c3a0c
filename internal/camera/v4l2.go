package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// v4l2Device はシェルコマンド経由でV4L2デバイスを操作する
type v4l2Device struct {
	path   string
	width  int
	height int
	fps    int
}

// newV4L2Device は新しいv4l2Deviceを作成する
func newV4L2Device(path string, width, height, fps int) *v4l2Device {
	return &v4l2Device{
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
	}
}

// isAvailable はデバイスが利用可能かチェックする
func (d *v4l2Device) isAvailable(ctx context.Context) bool {
	// デバイスファイルの存在確認
	if _, err := os.Stat(d.path); err != nil {
		return false
	}

	// v4l2-ctlコマンドでデバイス情報を取得して確認
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", d.path, "--info")
	return cmd.Run() == nil
}

// startStream は連続キャプチャを開始し、JPEGフレームをチャンネルへ流す
// ctx のキャンセルで停止する
func (d *v4l2Device) startStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.width, d.height),
		"-r", strconv.Itoa(d.fps),
		"-i", d.path,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errorChan <- fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		return
	}

	if err := cmd.Start(); err != nil {
		errorChan <- fmt.Errorf("ffmpegの起動に失敗: %w", err)
		return
	}

	go func() {
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		readBuf := make([]byte, 1024*1024)
		var pending []byte

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := stdout.Read(readBuf)
			if err != nil {
				if err.Error() != "EOF" {
					select {
					case errorChan <- fmt.Errorf("フレーム読み取りエラー: %w", err):
					default:
					}
				}
				return
			}

			pending = append(pending, readBuf[:n]...)

			// バッファから完全なJPEGフレームを切り出して送信
			for {
				frame, rest, ok := extractJPEGFrame(pending)
				if !ok {
					pending = rest
					break
				}
				pending = rest

				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// extractJPEGFrame はバッファ先頭の完全なJPEGフレームを切り出す
// フレームが完成していない場合は ok=false を返し、先頭のゴミは捨てる
func extractJPEGFrame(data []byte) (frame []byte, rest []byte, ok bool) {
	// JPEGの開始マーカー（FF D8）を探す
	start := bytes.Index(data, []byte{0xFF, 0xD8})
	if start == -1 {
		return nil, nil, false
	}

	// JPEGの終了マーカー（FF D9）を探す
	end := bytes.Index(data[start+2:], []byte{0xFF, 0xD9})
	if end == -1 {
		return nil, data[start:], false
	}

	end += start + 2 + 2 // マーカー自身のサイズを含める
	frame = make([]byte, end-start)
	copy(frame, data[start:end])

	return frame, data[end:], true
}

// listControls はデバイスのコントロール一覧の出力を返す
func (d *v4l2Device) listControls(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", d.path, "--list-ctrls")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("コントロール一覧の取得に失敗: %w", err)
	}
	return string(output), nil
}

// setControl はデバイスのコントロール（フォーカスなど）を設定する
func (d *v4l2Device) setControl(ctx context.Context, name, value string) error {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", d.path, "--set-ctrl", fmt.Sprintf("%s=%s", name, value))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("コントロール %s の設定に失敗: %w", name, err)
	}
	return nil
}

// listFormats はサポートされているフォーマット名の一覧を返す
func (d *v4l2Device) listFormats(ctx context.Context) []string {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", d.path, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	return parseFormats(string(output))
}

// parseFormats はv4l2-ctlのフォーマット一覧出力からフォーマット名を抽出する
func parseFormats(output string) []string {
	var formats []string
	for _, name := range []string{"MJPG", "YUYV", "GREY"} {
		if strings.Contains(output, name) {
			formats = append(formats, name)
		}
	}
	return formats
}

// supportsFocusPoint はコントロール一覧の出力から手動フォーカス対応を判定する
// フォーカス距離の指定と継続AFの切り替えが両方できる場合のみ対応とみなす
func supportsFocusPoint(controls string) bool {
	hasAbsolute := strings.Contains(controls, "focus_absolute")
	hasContinuous := strings.Contains(controls, "focus_automatic_continuous") ||
		strings.Contains(controls, "focus_auto")
	return hasAbsolute && hasContinuous
}
