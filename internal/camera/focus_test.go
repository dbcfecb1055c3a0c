package camera

import (
	"context"
	"fmt"
	"testing"
)

// TestFocusController_Supported は対応デバイスに正規化座標が適用されることを検証する
func TestFocusController_Supported(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider(true)
	controller := NewFocusController()

	stream, err := provider.Acquire(ctx, FacingFront, FocusHintContinuous)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() { _ = provider.Release(ctx, stream) }()

	nx, ny := controller.Apply(ctx, stream, 320, 120, 640, 480)
	if nx != 0.5 || ny != 0.25 {
		t.Errorf("Expected normalized point (0.5, 0.25), got (%v, %v)", nx, ny)
	}

	mock := stream.(*MockStream)
	calls := mock.FocusCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 focus call, got %d", len(calls))
	}
	if calls[0] != [2]float64{0.5, 0.25} {
		t.Errorf("Unexpected focus point: %v", calls[0])
	}
}

// TestFocusController_Unsupported は非対応デバイスで何もしないことを検証する
func TestFocusController_Unsupported(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider(false)
	controller := NewFocusController()

	stream, err := provider.Acquire(ctx, FacingFront, FocusHintNone)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() { _ = provider.Release(ctx, stream) }()

	// 非対応でもエラーにはならない
	controller.Apply(ctx, stream, 100, 100, 640, 480)

	mock := stream.(*MockStream)
	if len(mock.FocusCalls()) != 0 {
		t.Errorf("Expected no focus calls on unsupported stream, got %d", len(mock.FocusCalls()))
	}
}

// TestFocusController_FailureIgnored は適用失敗が呼び出し側に伝わらないことを検証する
func TestFocusController_FailureIgnored(t *testing.T) {
	ctx := context.Background()
	provider := NewMockProvider(true)
	controller := NewFocusController()

	stream, err := provider.Acquire(ctx, FacingFront, FocusHintNone)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() { _ = provider.Release(ctx, stream) }()

	mock := stream.(*MockStream)
	mock.SetFocusError(fmt.Errorf("モック: フォーカス失敗"))

	// 失敗してもパニックやエラー伝播は起きない
	nx, ny := controller.Apply(ctx, stream, 0, 0, 640, 480)
	if nx != 0 || ny != 0 {
		t.Errorf("Expected normalized point (0, 0), got (%v, %v)", nx, ny)
	}
}

func TestFocusController_NilStream(t *testing.T) {
	controller := NewFocusController()

	nx, ny := controller.Apply(context.Background(), nil, 320, 240, 640, 480)
	if nx != 0.5 || ny != 0.5 {
		t.Errorf("Expected normalized point (0.5, 0.5), got (%v, %v)", nx, ny)
	}
}
