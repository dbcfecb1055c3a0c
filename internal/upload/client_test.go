package upload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mekiki/internal/capture"
)

// testImage はテスト用のImageを作成する
func testImage(t *testing.T) *capture.Image {
	t.Helper()

	engine, err := capture.NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	img, err := engine.FromUpload([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}, "image/jpeg")
	if err != nil {
		t.Fatalf("FromUpload failed: %v", err)
	}
	return img
}

// uploadError は分類済みエラーを取り出すヘルパー
func uploadError(t *testing.T, err error) *Error {
	t.Helper()

	if err == nil {
		t.Fatal("Expected an error")
	}
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("Expected *upload.Error, got %T: %v", err, err)
	}
	return uerr
}

// TestClient_SubmitSuccess は成功レスポンスの往復を検証する
func TestClient_SubmitSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Expected multipart/form-data, got %s", r.Header.Get("Content-Type"))
		}

		// ファイルフィールドの確認
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file field: %v", err)
		} else {
			defer func() { _ = file.Close() }()
			if header.Header.Get("Content-Type") != "image/jpeg" {
				t.Errorf("Expected image/jpeg part, got %s", header.Header.Get("Content-Type"))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"abc","classification":{"vegan":true}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Submit(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if result.Text != "abc" {
		t.Errorf("Expected text abc, got %q", result.Text)
	}
	if len(result.Classification) != 1 {
		t.Fatalf("Expected 1 classification row, got %d", len(result.Classification))
	}
	if verdict, exists := result.Classification["vegan"]; !exists || !verdict {
		t.Errorf("Expected vegan=true, got %v", result.Classification)
	}

	// 150文字以下なので切り詰めは発生しない
	if result.CollapsedText() != "abc" {
		t.Errorf("Expected collapsed text abc, got %q", result.CollapsedText())
	}
	if result.Truncated() {
		t.Error("Expected short text not to be truncated")
	}
}

func TestClient_SubmitServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"バックエンドが応答しません"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Submit(context.Background(), testImage(t))

	uerr := uploadError(t, err)
	if uerr.Kind != ErrorServer {
		t.Errorf("Expected kind server, got %s", uerr.Kind)
	}
	if uerr.Status != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", uerr.Status)
	}
	if uerr.Message != "バックエンドが応答しません" {
		t.Errorf("Expected message from body, got %q", uerr.Message)
	}
}

// TestClient_SubmitTimeout はタイムアウトがTimeoutとして分類されることを検証する
func TestClient_SubmitTimeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, 50*time.Millisecond)
	_, err := client.Submit(context.Background(), testImage(t))

	<-started

	uerr := uploadError(t, err)
	if uerr.Kind != ErrorTimeout {
		t.Errorf("Expected kind timeout, got %s", uerr.Kind)
	}
}

func TestClient_SubmitNetworkError(t *testing.T) {
	// 接続先の無いエンドポイントへ送信する
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	endpoint := server.URL
	server.Close()

	client := NewClient(endpoint, 5*time.Second)
	_, err := client.Submit(context.Background(), testImage(t))

	uerr := uploadError(t, err)
	if uerr.Kind != ErrorNetwork {
		t.Errorf("Expected kind network, got %s", uerr.Kind)
	}
}

func TestClient_SubmitWithoutImage(t *testing.T) {
	client := NewClient("http://localhost:1", time.Second)

	_, err := client.Submit(context.Background(), nil)
	uerr := uploadError(t, err)
	if uerr.Kind != ErrorRequest {
		t.Errorf("Expected kind request, got %s", uerr.Kind)
	}
}

func TestClient_SubmitMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("これはJSONではない"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Submit(context.Background(), testImage(t))

	uerr := uploadError(t, err)
	if uerr.Kind != ErrorRequest {
		t.Errorf("Expected kind request, got %s", uerr.Kind)
	}
}
