// Package main はMekikiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
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
	// コマンドラインオプション
	var (
		host     = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port     = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		endpoint = flag.String("endpoint", "", "判定エンドポイントのURL")
		help     = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Mekiki")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// .envがあれば読み込む（無くても続行）
	if err := godotenv.Load(); err != nil {
		log.Println(".envファイルが見つかりません。環境変数を使用します")
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *endpoint != "" {
		cfg.Upload.Endpoint = *endpoint
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

	// セッションを開始。カメラが使えない場合も起動は続行する
	if err := sess.Start(ctx); err != nil {
		log.Printf("カメラの取得に失敗しました（再試行可能）: %v", err)
	}

	// サーバーを作成して起動
	log.Printf("Mekiki サーバーを起動します: %s", cfg.ServerAddress())
	srv := server.New(cfg, sess)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
