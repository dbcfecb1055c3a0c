package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"mekiki/internal/camera"
	"mekiki/internal/capture"
	"mekiki/internal/config"
	"mekiki/internal/server"
	"mekiki/internal/session"
	"mekiki/internal/upload"
)

func main() {
	// .envがあれば読み込む（無くても続行）
	if err := godotenv.Load(); err != nil {
		log.Println(".envファイルが見つかりません。環境変数を使用します")
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// カメラプロバイダを作成
	provider := camera.NewV4L2Provider(
		cfg.Camera.FrontDevice,
		cfg.Camera.RearDevice,
		cfg.Camera.Width,
		cfg.Camera.Height,
		cfg.Camera.FPS,
	)

	// キャプチャエンジンを作成
	engine, err := capture.NewEngine(filepath.Join(os.TempDir(), "mekiki-previews"))
	if err != nil {
		log.Fatalf("キャプチャエンジンの作成に失敗しました: %v", err)
	}

	// アップロードクライアントを作成
	uploader := upload.NewClient(cfg.Upload.Endpoint, cfg.Upload.Timeout)

	// セッションを作成
	sess := session.New(provider, engine, uploader)

	// コンテキストを作成
	ctx := context.Background()

	// セッションを開始。カメラが使えない場合も起動は続行し、
	// ビューアから再試行できるようにする
	if err := sess.Start(ctx); err != nil {
		log.Printf("カメラの取得に失敗しました（再試行可能）: %v", err)
	}

	// サーバーを作成して起動
	srv := server.New(cfg, sess)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
