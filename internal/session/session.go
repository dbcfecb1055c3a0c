// Package session カメラセッション全体の状態遷移を管理する
//
// # 責務
// - カメラ利用可否（権限）状態の管理
// - 向き切り替え時のストリーム解放・再取得と古い取得結果の破棄
// - 現在の画像の所有権管理（置き換え時の解放）
// - アップロードのシングルフライト制御と結果・バナーの表示状態
//
// # 仕様
// - ライブなストリームハンドルは常に1つまで
// - ストリームの取得・解放はこのパッケージだけがProviderを通して行う
// - 取得には世代番号を付け、追い越された取得結果は確定させない
// - アップロード中の再送信は拒否する（シングルフライト）
// - 送信中のキャンセルは無し。タイムアウトだけが送信を打ち切る
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mekiki/internal/camera"
	"mekiki/internal/capture"
	"mekiki/internal/upload"
)

// Permission はカメラ利用可否の状態を表す
type Permission string

const (
	// PermissionUnknown はまだ取得を試みていない状態
	PermissionUnknown Permission = "unknown"
	// PermissionGranted はストリームを取得できた状態
	PermissionGranted Permission = "granted"
	// PermissionDenied は取得できなかった状態（理由は区別しない）
	PermissionDenied Permission = "denied"
)

// UploadPhase はアップロードのサブ状態を表す
type UploadPhase string

const (
	// PhaseIdle はまだ送信していない状態
	PhaseIdle UploadPhase = "idle"
	// PhaseInFlight は送信中の状態
	PhaseInFlight UploadPhase = "in_flight"
	// PhaseSucceeded は直近の送信が成功した状態
	PhaseSucceeded UploadPhase = "succeeded"
	// PhaseFailed は直近の送信が失敗した状態
	PhaseFailed UploadPhase = "failed"
)

// フォーカス位置の表示フィードバックの有効期間
const focusPointTTL = time.Second

var (
	// ErrNoImage は画像が無いまま送信しようとしたことを表す
	ErrNoImage = errors.New("画像が選択されていません")
	// ErrUploadInFlight は送信中に再送信しようとしたことを表す
	ErrUploadInFlight = errors.New("アップロードが進行中です")
	// ErrNotLive はライブストリームが無い状態での操作を表す
	ErrNotLive = errors.New("カメラがライブ状態ではありません")
	// ErrClosed はセッション終了後の操作を表す
	ErrClosed = errors.New("セッションは終了しています")
)

// Uploader は画像を判定エンドポイントへ送信する
type Uploader interface {
	Submit(ctx context.Context, image *capture.Image) (*upload.AnalysisResult, error)
}

// FocusPoint はタップ位置の表示フィードバック
// 一定時間で自動的に消える。永続化はしない
type FocusPoint struct {
	X         float64   `json:"x"` // 正規化X座標（0〜1）
	Y         float64   `json:"y"` // 正規化Y座標（0〜1）
	ExpiresAt time.Time `json:"-"`
}

// Snapshot は描画用に観測可能な状態を写し取ったもの
type Snapshot struct {
	Permission    Permission
	Facing        camera.FacingMode
	HasImage      bool
	Phase         UploadPhase
	Result        *upload.AnalysisResult
	Failure       string
	ResultVisible bool
	BannerVisible bool
	FocusPoint    *FocusPoint
}

// Controller はセッションの状態機械
// すべての状態遷移はこのオブジェクトを通して行う
type Controller struct {
	provider camera.Provider
	engine   *capture.Engine
	uploader Uploader
	focus    *camera.FocusController

	mu         sync.Mutex
	permission Permission
	facing     camera.FacingMode
	stream     camera.Stream
	acquireGen uint64
	image      *capture.Image
	phase      UploadPhase
	result     *upload.AnalysisResult
	failure    string
	resultOn   bool
	bannerOn   bool
	focusPoint *FocusPoint
	closed     bool
}

// New は新しいControllerを作成する
func New(provider camera.Provider, engine *capture.Engine, uploader Uploader) *Controller {
	return &Controller{
		provider:   provider,
		engine:     engine,
		uploader:   uploader,
		focus:      camera.NewFocusController(),
		permission: PermissionUnknown,
		facing:     camera.FacingFront,
		phase:      PhaseIdle,
	}
}

// Start はセッションを開始し、デフォルトの向き（自分向き）でストリームを取得する
// 失敗するとPermissionDeniedに遷移する
func (c *Controller) Start(ctx context.Context) error {
	return c.switchFacing(ctx, camera.FacingFront)
}

// FlipFacing は反対側のカメラへ切り替える
// 今のストリームを解放してから反対側を取得する
// 取得に失敗した場合、古いストリームは残さずPermissionDeniedに遷移する
func (c *Controller) FlipFacing(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// ライブ状態でのみ切り替えを許可する
	// 取得中はストリームが一時的に無いため、権限状態で判定する
	if c.permission != PermissionGranted {
		c.mu.Unlock()
		return ErrNotLive
	}
	target := c.facing.Opposite()
	c.mu.Unlock()

	return c.switchFacing(ctx, target)
}

// RetryPermission は拒否状態から取得を再試行する
func (c *Controller) RetryPermission(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	target := c.facing
	c.permission = PermissionUnknown
	c.mu.Unlock()

	return c.switchFacing(ctx, target)
}

// switchFacing は指定された向きのストリームへ入れ替える
// 取得に世代番号を付け、より新しい取得に追い越された結果は確定させない
func (c *Controller) switchFacing(ctx context.Context, target camera.FacingMode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.acquireGen++
	gen := c.acquireGen
	old := c.stream
	c.stream = nil
	c.facing = target
	c.mu.Unlock()

	// 次のハンドルを取得する前に必ず古いハンドルを解放する
	if old != nil {
		if err := c.provider.Release(ctx, old); err != nil {
			log.Printf("ストリームの解放に失敗しました: %v", err)
		}
	}

	stream, err := c.provider.Acquire(ctx, target, camera.FocusHintContinuous)

	c.mu.Lock()
	superseded := gen != c.acquireGen || c.closed
	if !superseded {
		if err != nil {
			c.permission = PermissionDenied
		} else {
			c.stream = stream
			c.permission = PermissionGranted
		}
	}
	c.mu.Unlock()

	// 追い越された取得結果のハンドルは確定させず解放する
	if superseded {
		if stream != nil {
			if relErr := c.provider.Release(ctx, stream); relErr != nil {
				log.Printf("追い越されたストリームの解放に失敗しました: %v", relErr)
			}
		}
		return nil
	}

	if err != nil {
		return fmt.Errorf("ストリームの取得に失敗: %w", err)
	}
	return nil
}

// Capture はライブストリームから静止画をキャプチャして現在の画像に置き換える
// アップロードのサブ状態は変更しない
func (c *Controller) Capture(ctx context.Context) (*capture.Image, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return nil, ErrNotLive
	}

	img, err := c.engine.Capture(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("キャプチャに失敗: %w", err)
	}

	c.replaceImage(img)
	return img, nil
}

// SelectImage はユーザーが選択したファイルを現在の画像に置き換える
func (c *Controller) SelectImage(data []byte, mimeType string) (*capture.Image, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	img, err := c.engine.FromUpload(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("画像の取り込みに失敗: %w", err)
	}

	c.replaceImage(img)
	return img, nil
}

// replaceImage は現在の画像を入れ替え、古い画像のプレビューを解放する
func (c *Controller) replaceImage(img *capture.Image) {
	c.mu.Lock()
	old := c.image
	c.image = img
	c.mu.Unlock()

	if old != nil {
		if err := old.Release(); err != nil {
			log.Printf("古い画像の解放に失敗しました: %v", err)
		}
	}
}

// Submit は現在の画像を判定エンドポイントへ送信する
// 画像が無い場合と送信中の場合は拒否する（リクエストは送られない）
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.image == nil {
		c.mu.Unlock()
		return ErrNoImage
	}
	if c.phase == PhaseInFlight {
		c.mu.Unlock()
		return ErrUploadInFlight
	}

	// 送信開始: 結果パネルを隠し、バナーをクリアする
	img := c.image
	c.phase = PhaseInFlight
	c.resultOn = false
	c.bannerOn = false
	c.failure = ""
	c.mu.Unlock()

	result, err := c.uploader.Submit(ctx, img)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.phase = PhaseFailed
		c.bannerOn = true
		c.failure = err.Error()
		return err
	}

	c.phase = PhaseSucceeded
	c.result = result
	c.resultOn = true
	c.bannerOn = false
	return nil
}

// DismissResult は結果パネルを閉じる
// アップロードのサブ状態はリセットしない。直近の結果は
// 次の成功した送信で上書きされるまで参照できる
func (c *Controller) DismissResult() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resultOn = false
}

// DismissBanner は失敗バナーを閉じる
// サブ状態はfailedのまま残す（DESIGN.md参照）
func (c *Controller) DismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bannerOn = false
}

// FocusAt はタップ位置にフォーカスを合わせ、表示フィードバックを記録する
// ライブでない場合は何もしない
func (c *Controller) FocusAt(ctx context.Context, x, y, displayWidth, displayHeight int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.mu.Unlock()

	if stream == nil {
		return
	}

	nx, ny := c.focus.Apply(ctx, stream, x, y, displayWidth, displayHeight)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusPoint = &FocusPoint{
		X:         nx,
		Y:         ny,
		ExpiresAt: time.Now().Add(focusPointTTL),
	}
}

// Frames は描画用にライブフレームのチャンネルを返す
func (c *Controller) Frames() (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.stream == nil {
		return nil, ErrNotLive
	}
	return c.stream.FrameChannel(), nil
}

// CurrentImage は現在の画像を返す（無い場合はnil）
func (c *Controller) CurrentImage() *capture.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image
}

// Snapshot は観測可能な状態のコピーを返す
// 期限切れのフォーカス位置は含めない
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Permission:    c.permission,
		Facing:        c.facing,
		HasImage:      c.image != nil,
		Phase:         c.phase,
		Failure:       c.failure,
		ResultVisible: c.resultOn,
		BannerVisible: c.bannerOn,
	}

	if c.result != nil {
		resultCopy := *c.result
		snap.Result = &resultCopy
	}

	if c.focusPoint != nil && time.Now().Before(c.focusPoint.ExpiresAt) {
		pointCopy := *c.focusPoint
		snap.FocusPoint = &pointCopy
	}

	return snap
}

// Close はセッションを終了し、ストリームと画像を解放する
// 進行中の取得は世代番号の更新で無効化される
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.acquireGen++
	stream := c.stream
	c.stream = nil
	img := c.image
	c.image = nil
	c.mu.Unlock()

	if img != nil {
		if err := img.Release(); err != nil {
			log.Printf("画像の解放に失敗しました: %v", err)
		}
	}

	if stream != nil {
		if err := c.provider.Release(ctx, stream); err != nil {
			return fmt.Errorf("ストリームの解放に失敗: %w", err)
		}
	}

	return nil
}
