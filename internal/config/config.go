package config

import (
	"fmt"
	"os"
	"time"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Upload UploadConfig `yaml:"upload"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
// 向きごとにデバイスパスを割り当てる
type CameraConfig struct {
	FrontDevice string `yaml:"front_device"` // 自分向きカメラのデバイスパス
	RearDevice  string `yaml:"rear_device"`  // 外向きカメラのデバイスパス

	// キャプチャ設定
	Width  int `yaml:"width"`  // 画像幅
	Height int `yaml:"height"` // 画像高さ
	FPS    int `yaml:"fps"`    // フレームレート
}

// UploadConfig は判定エンドポイントへの送信設定
type UploadConfig struct {
	Endpoint string        `yaml:"endpoint"` // 送信先URL（固定）
	Timeout  time.Duration `yaml:"timeout"`  // 送信タイムアウト
}

// Load は設定を読み込む
// 環境変数が設定されていればデフォルト値を上書きする
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsIntOrDefault("PORT", 8080),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			FrontDevice: getEnvOrDefault("FRONT_CAMERA_DEVICE", "/dev/video0"),
			RearDevice:  getEnvOrDefault("REAR_CAMERA_DEVICE", "/dev/video1"),
			Width:       getEnvAsIntOrDefault("CAMERA_WIDTH", 1280),
			Height:      getEnvAsIntOrDefault("CAMERA_HEIGHT", 720),
			FPS:         getEnvAsIntOrDefault("CAMERA_FPS", 15),
		},
		Upload: UploadConfig{
			Endpoint: getEnvOrDefault("UPLOAD_ENDPOINT", "https://api.mekiki.jp/upload"),
			Timeout:  time.Duration(getEnvAsIntOrDefault("UPLOAD_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	if c.Camera.FrontDevice == "" {
		return fmt.Errorf("自分向きカメラのデバイスパスが設定されていません")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS)
	}

	// アップロード設定の検証
	if c.Upload.Endpoint == "" {
		return fmt.Errorf("アップロードエンドポイントが設定されていません")
	}
	if c.Upload.Timeout <= 0 {
		return fmt.Errorf("無効なアップロードタイムアウト: %v", c.Upload.Timeout)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
