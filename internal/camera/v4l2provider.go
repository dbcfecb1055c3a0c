package camera

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// V4L2Provider はV4L2デバイスを使用するProvider実装
// カメラの向きを設定済みのデバイスパスにマッピングする
type V4L2Provider struct {
	devices map[FacingMode]string
	width   int
	height  int
	fps     int
}

// NewV4L2Provider は新しいV4L2Providerを作成する
// 向きに対応するデバイスが無い場合は空文字列を渡す
func NewV4L2Provider(frontDevice, rearDevice string, width, height, fps int) *V4L2Provider {
	return &V4L2Provider{
		devices: map[FacingMode]string{
			FacingFront: frontDevice,
			FacingRear:  rearDevice,
		},
		width:  width,
		height: height,
		fps:    fps,
	}
}

// Acquire は指定された向きのストリームを取得する
func (p *V4L2Provider) Acquire(ctx context.Context, facing FacingMode, hint FocusHint) (Stream, error) {
	path, exists := p.devices[facing]
	if !exists || path == "" {
		return nil, &PermissionError{Facing: facing, Cause: fmt.Errorf("デバイスが割り当てられていません")}
	}

	dev := newV4L2Device(path, p.width, p.height, p.fps)

	// デバイスの利用可能性をチェック
	if !dev.isAvailable(ctx) {
		return nil, &PermissionError{Facing: facing, Cause: fmt.Errorf("デバイスが利用できません: %s", path)}
	}

	// ストリームの能力を問い合わせる
	caps := Capabilities{
		SupportedResolutions: []Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
			{Width: 1920, Height: 1080},
		},
		SupportedFormats: dev.listFormats(ctx),
	}
	if controls, err := dev.listControls(ctx); err == nil {
		caps.FocusPointSupported = supportsFocusPoint(controls)
	}

	// 継続AFの指定はベストエフォートで適用する
	if hint == FocusHintContinuous && caps.FocusPointSupported {
		if err := dev.setControl(ctx, "focus_automatic_continuous", "1"); err != nil {
			log.Printf("継続AFの設定に失敗しました（無視します）: %v", err)
		}
	}

	// ストリーミングを開始
	streamCtx, cancel := context.WithCancel(context.Background())
	s := &v4l2Stream{
		id:        uuid.New().String(),
		facing:    facing,
		dev:       dev,
		caps:      caps,
		cancel:    cancel,
		frameChan: make(chan []byte, 10),
		errorChan: make(chan error, 5),
		rawChan:   make(chan []byte, 10),
	}

	dev.startStream(streamCtx, s.rawChan, s.errorChan)

	s.wg.Add(1)
	go s.forwardFrames(streamCtx)

	return s, nil
}

// Release はストリームを停止して解放する
// 二重解放は何もしない
func (p *V4L2Provider) Release(_ context.Context, stream Stream) error {
	s, ok := stream.(*v4l2Stream)
	if !ok {
		return fmt.Errorf("不明なストリームハンドル: %T", stream)
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	// キャプチャプロセスを停止し、転送ゴルーチンの終了を待つ
	s.cancel()
	s.wg.Wait()

	return nil
}

// v4l2Stream はV4L2デバイスのStream実装
type v4l2Stream struct {
	id     string
	facing FacingMode
	dev    *v4l2Device
	caps   Capabilities
	cancel context.CancelFunc

	frameChan chan []byte
	errorChan chan error
	rawChan   chan []byte

	mu          sync.RWMutex
	latestFrame []byte
	released    bool

	wg sync.WaitGroup
}

// ID はハンドルの一意識別子を返す
func (s *v4l2Stream) ID() string {
	return s.id
}

// Facing は取得時に指定した向きを返す
func (s *v4l2Stream) Facing() FacingMode {
	return s.facing
}

// Capabilities はストリームの能力を返す
func (s *v4l2Stream) Capabilities() Capabilities {
	return s.caps
}

// FrameChannel はライブフレームのチャンネルを返す
func (s *v4l2Stream) FrameChannel() <-chan []byte {
	return s.frameChan
}

// LatestFrame は直近フレームのコピーを返す
func (s *v4l2Stream) LatestFrame() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.released {
		return nil, fmt.Errorf("ストリームは解放済みです")
	}
	if s.latestFrame == nil {
		return nil, fmt.Errorf("フレームがまだ取得されていません")
	}

	frame := make([]byte, len(s.latestFrame))
	copy(frame, s.latestFrame)
	return frame, nil
}

// ApplyFocusPoint は正規化座標にフォーカスを合わせる
// UVCカメラにはポイントフォーカスが無いため、継続AFを止めて
// 縦位置から焦点距離を近似する
func (s *v4l2Stream) ApplyFocusPoint(ctx context.Context, _, y float64) error {
	if err := s.dev.setControl(ctx, "focus_automatic_continuous", "0"); err != nil {
		return err
	}

	// focus_absolute は多くのUVCデバイスで0〜255
	value := int(math.Round(y * 255))
	return s.dev.setControl(ctx, "focus_absolute", strconv.Itoa(value))
}

// forwardFrames はキャプチャからフレームを転送し、直近フレームを保持する
func (s *v4l2Stream) forwardFrames(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-s.errorChan:
			log.Printf("キャプチャでエラーが発生しました: %v", err)

		case frame, ok := <-s.rawChan:
			if !ok {
				return
			}

			// 直近フレームを保存（静止画キャプチャ用）
			s.mu.Lock()
			s.latestFrame = make([]byte, len(frame))
			copy(s.latestFrame, frame)
			s.mu.Unlock()

			// フレームを転送。チャンネルがフルの場合は古いフレームを破棄
			select {
			case s.frameChan <- frame:
			case <-ctx.Done():
				return
			default:
				select {
				case <-s.frameChan:
				default:
				}
				select {
				case s.frameChan <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
