package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockProvider はテスト用のProvider実装
// 取得・解放の回数を記録し、リークの検証に使う
type MockProvider struct {
	mu sync.Mutex

	acquireCount int
	stopCount    int
	streams      []*MockStream

	focusSupported bool
	failFacing     map[FacingMode]bool

	// acquireHook は取得処理の直前に呼ばれる（ブロックさせたいテスト用）
	acquireHook func(facing FacingMode)
}

// NewMockProvider は新しいMockProviderを作成する
func NewMockProvider(focusSupported bool) *MockProvider {
	return &MockProvider{
		focusSupported: focusSupported,
		failFacing:     make(map[FacingMode]bool),
	}
}

// Acquire はモックストリームを取得する
func (p *MockProvider) Acquire(_ context.Context, facing FacingMode, _ FocusHint) (Stream, error) {
	p.mu.Lock()
	hook := p.acquireHook
	p.mu.Unlock()

	if hook != nil {
		hook(facing)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failFacing[facing] {
		return nil, &PermissionError{Facing: facing, Cause: fmt.Errorf("モック: 取得失敗")}
	}

	s := &MockStream{
		id:        uuid.New().String(),
		facing:    facing,
		frameChan: make(chan []byte, 10),
		caps: Capabilities{
			FocusPointSupported: p.focusSupported,
			SupportedResolutions: []Resolution{
				{Width: 640, Height: 480},
				{Width: 1280, Height: 720},
			},
			SupportedFormats: []string{"MJPG"},
		},
	}

	p.acquireCount++
	p.streams = append(p.streams, s)

	return s, nil
}

// Release はモックストリームを停止する
func (p *MockProvider) Release(_ context.Context, stream Stream) error {
	s, ok := stream.(*MockStream)
	if !ok {
		return fmt.Errorf("不明なストリームハンドル: %T", stream)
	}

	s.mu.Lock()
	alreadyStopped := s.stopped
	s.stopped = true
	s.mu.Unlock()

	if !alreadyStopped {
		p.mu.Lock()
		p.stopCount++
		p.mu.Unlock()
	}

	return nil
}

// SetShouldFail はテスト用に指定した向きの取得失敗を設定する
func (p *MockProvider) SetShouldFail(facing FacingMode, shouldFail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFacing[facing] = shouldFail
}

// SetAcquireHook は取得直前に呼ばれるフックを設定する
func (p *MockProvider) SetAcquireHook(hook func(facing FacingMode)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireHook = hook
}

// AcquireCount は取得回数を返す
func (p *MockProvider) AcquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireCount
}

// StopCount は停止回数を返す
func (p *MockProvider) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCount
}

// LiveCount は停止されていないストリーム数を返す
func (p *MockProvider) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := 0
	for _, s := range p.streams {
		if !s.Stopped() {
			live++
		}
	}
	return live
}

// Streams は作成された全ストリームを返す
func (p *MockProvider) Streams() []*MockStream {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]*MockStream, len(p.streams))
	copy(result, p.streams)
	return result
}

// MockStream はテスト用のStream実装
type MockStream struct {
	id        string
	facing    FacingMode
	caps      Capabilities
	frameChan chan []byte

	mu         sync.Mutex
	frame      []byte
	stopped    bool
	focusErr   error
	focusCalls [][2]float64
}

// ID はハンドルの一意識別子を返す
func (s *MockStream) ID() string {
	return s.id
}

// Facing は取得時に指定した向きを返す
func (s *MockStream) Facing() FacingMode {
	return s.facing
}

// Capabilities はストリームの能力を返す
func (s *MockStream) Capabilities() Capabilities {
	return s.caps
}

// FrameChannel はフレームチャンネルを返す
func (s *MockStream) FrameChannel() <-chan []byte {
	return s.frameChan
}

// LatestFrame は設定されたフレームのコピーを返す
func (s *MockStream) LatestFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("ストリームは解放済みです")
	}
	if s.frame == nil {
		return nil, fmt.Errorf("フレームがまだ取得されていません")
	}

	frame := make([]byte, len(s.frame))
	copy(frame, s.frame)
	return frame, nil
}

// ApplyFocusPoint はフォーカス適用を記録する
func (s *MockStream) ApplyFocusPoint(_ context.Context, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focusErr != nil {
		return s.focusErr
	}
	s.focusCalls = append(s.focusCalls, [2]float64{x, y})
	return nil
}

// SetFrame はテスト用に直近フレームを設定する
func (s *MockStream) SetFrame(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

// SetFocusError はテスト用にフォーカス適用の失敗を設定する
func (s *MockStream) SetFocusError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusErr = err
}

// Stopped はストリームが停止済みかどうかを返す
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// FocusCalls は記録されたフォーカス適用を返す
func (s *MockStream) FocusCalls() [][2]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([][2]float64, len(s.focusCalls))
	copy(result, s.focusCalls)
	return result
}

// SetCapabilities はテスト用に能力を上書きする
func (s *MockStream) SetCapabilities(caps Capabilities) {
	s.caps = caps
}
