package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mekiki/internal/camera"
	"mekiki/internal/session"
	"mekiki/internal/upload"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string     `json:"status"`
	Server    ServerInfo `json:"server"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultPayload は解析結果の表示用レスポンス
type ResultPayload struct {
	Text           string          `json:"text"`
	CollapsedText  string          `json:"collapsed_text"`
	Truncated      bool            `json:"truncated"`
	Classification map[string]bool `json:"classification,omitempty"`
}

// SessionResponse はセッション状態のレスポンス
type SessionResponse struct {
	Permission    string              `json:"permission"`
	Facing        string              `json:"facing"`
	HasImage      bool                `json:"has_image"`
	UploadPhase   string              `json:"upload_phase"`
	ResultVisible bool                `json:"result_visible"`
	BannerVisible bool                `json:"banner_visible"`
	Failure       string              `json:"failure,omitempty"`
	Result        *ResultPayload      `json:"result,omitempty"`
	FocusPoint    *session.FocusPoint `json:"focus_point,omitempty"`
}

// FocusRequest はタップフォーカスのリクエスト
type FocusRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width" binding:"required"`
	Height int `json:"height" binding:"required"`
}

// handleIndex はビューアページを配信する
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML())
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Timestamp: time.Now(),
	})
}

// handleGetSession はセッション状態取得エンドポイントの実装
func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleFlipFacing はカメラ切り替えエンドポイントの実装
func (s *Server) handleFlipFacing(c *gin.Context) {
	if err := s.session.FlipFacing(c.Request.Context()); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleCapture は静止画キャプチャエンドポイントの実装
func (s *Server) handleCapture(c *gin.Context) {
	if _, err := s.session.Capture(c.Request.Context()); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleSelectImage はファイル選択エンドポイントの実装
func (s *Server) handleSelectImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "画像ファイルが指定されていません",
			Timestamp: time.Now(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "画像ファイルを開けません",
			Timestamp: time.Now(),
		})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "画像ファイルの読み取りに失敗しました",
			Timestamp: time.Now(),
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if _, err := s.session.SelectImage(data, mimeType); err != nil {
		s.renderSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleSubmit は判定送信エンドポイントの実装
func (s *Server) handleSubmit(c *gin.Context) {
	if err := s.session.Submit(c.Request.Context()); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleFocus はタップフォーカスエンドポイントの実装
func (s *Server) handleFocus(c *gin.Context) {
	var req FocusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "フォーカス位置の指定が不正です",
			Timestamp: time.Now(),
		})
		return
	}

	s.session.FocusAt(c.Request.Context(), req.X, req.Y, req.Width, req.Height)
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleDismissResult は結果パネルを閉じるエンドポイントの実装
func (s *Server) handleDismissResult(c *gin.Context) {
	s.session.DismissResult()
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleDismissBanner は失敗バナーを閉じるエンドポイントの実装
func (s *Server) handleDismissBanner(c *gin.Context) {
	s.session.DismissBanner()
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handleRetryPermission はカメラ再試行エンドポイントの実装
func (s *Server) handleRetryPermission(c *gin.Context) {
	if err := s.session.RetryPermission(c.Request.Context()); err != nil {
		s.renderSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse())
}

// handlePreview は現在の画像のプレビューを配信する
func (s *Server) handlePreview(c *gin.Context) {
	img := s.session.CurrentImage()
	if img == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "image_not_found",
			Message:   "画像がまだありません",
			Timestamp: time.Now(),
		})
		return
	}

	c.Data(http.StatusOK, img.MimeType, img.Data)
}

// handleStream はMJPEGストリーミングエンドポイントの実装
func (s *Server) handleStream(c *gin.Context) {
	frameChan, err := s.session.Frames()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "stream_not_live",
			Message:   "カメラがライブ状態ではありません",
			Timestamp: time.Now(),
		})
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case frame, ok := <-frameChan:
			if !ok {
				// チャンネルがクローズされた
				return
			}

			if _, err := writer.Write([]byte("--frame\r\n")); err != nil {
				return
			}
			if _, err := writer.Write([]byte("Content-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

// sessionResponse は現在のセッション状態からレスポンスを組み立てる
func (s *Server) sessionResponse() SessionResponse {
	snap := s.session.Snapshot()

	resp := SessionResponse{
		Permission:    string(snap.Permission),
		Facing:        string(snap.Facing),
		HasImage:      snap.HasImage,
		UploadPhase:   string(snap.Phase),
		ResultVisible: snap.ResultVisible,
		BannerVisible: snap.BannerVisible,
		Failure:       snap.Failure,
		FocusPoint:    snap.FocusPoint,
	}

	if snap.Result != nil {
		resp.Result = &ResultPayload{
			Text:           snap.Result.Text,
			CollapsedText:  snap.Result.CollapsedText(),
			Truncated:      snap.Result.Truncated(),
			Classification: snap.Result.Classification,
		}
	}

	return resp
}

// renderSessionError はセッション操作のエラーをHTTPレスポンスに変換する
func (s *Server) renderSessionError(c *gin.Context, err error) {
	now := time.Now()

	switch {
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusGone, ErrorResponse{
			Error:     "session_closed",
			Message:   "セッションは終了しています",
			Timestamp: now,
		})

	case errors.Is(err, session.ErrNotLive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "not_live",
			Message:   "カメラがライブ状態ではありません",
			Timestamp: now,
		})

	case errors.Is(err, session.ErrNoImage):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "no_image",
			Message:   "画像が選択されていません",
			Timestamp: now,
		})

	case errors.Is(err, session.ErrUploadInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     "upload_in_flight",
			Message:   "アップロードが進行中です",
			Timestamp: now,
		})

	default:
		var permErr *camera.PermissionError
		if errors.As(err, &permErr) {
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error:     "permission_denied",
				Message:   "カメラを利用できません",
				Timestamp: now,
			})
			return
		}

		var uploadErr *upload.Error
		if errors.As(err, &uploadErr) {
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:     "upload_failed",
				Message:   uploadErr.Error(),
				Timestamp: now,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_error",
			Message:   err.Error(),
			Timestamp: now,
		})
	}
}
