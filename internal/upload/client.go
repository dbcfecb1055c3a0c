// Package upload 判定エンドポイントへの画像送信を担う
//
// 送信は1回のmultipart POSTのみで、リトライはしない。
// 失敗はタイムアウト・サーバーエラー・ネットワークエラー・
// リクエストエラーの4種類に分類して返す。
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"mekiki/internal/capture"
)

// multipartのファイルフィールド名
const fileFieldName = "file"

// ErrorKind はアップロード失敗の分類を表す
type ErrorKind string

const (
	// ErrorTimeout はタイムアウトを表す
	ErrorTimeout ErrorKind = "timeout"
	// ErrorServer はレスポンスを受信したが非成功ステータスだったことを表す
	ErrorServer ErrorKind = "server"
	// ErrorNetwork はリクエストを送信したがレスポンスが無かったことを表す
	ErrorNetwork ErrorKind = "network"
	// ErrorRequest はリクエストの構築・送信ができなかったことを表す
	ErrorRequest ErrorKind = "request"
)

// Error は分類済みのアップロード失敗を表す
type Error struct {
	Kind    ErrorKind // 失敗の分類
	Status  int       // HTTPステータスコード（ErrorServerのとき）
	Message string    // 人間が読めるメッセージ
	cause   error
}

// Error はエラーメッセージを返す
func (e *Error) Error() string {
	switch e.Kind {
	case ErrorTimeout:
		return "アップロードがタイムアウトしました"
	case ErrorServer:
		if e.Message != "" {
			return fmt.Sprintf("サーバーエラー（%d）: %s", e.Status, e.Message)
		}
		return fmt.Sprintf("サーバーエラー（%d）", e.Status)
	case ErrorNetwork:
		return "ネットワークエラーが発生しました"
	default:
		if e.Message != "" {
			return fmt.Sprintf("リクエストの送信に失敗しました: %s", e.Message)
		}
		return "リクエストの送信に失敗しました"
	}
}

// Unwrap は元のエラーを返す
func (e *Error) Unwrap() error {
	return e.cause
}

// Client は判定エンドポイントへのアップロードクライアント
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient は新しいClientを作成する
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit は画像を判定エンドポイントへ送信し、解析結果を返す
// 送信は1回のみで、失敗時の再送信はユーザーの操作に委ねる
func (c *Client) Submit(ctx context.Context, image *capture.Image) (*AnalysisResult, error) {
	if image == nil || len(image.Data) == 0 {
		return nil, &Error{Kind: ErrorRequest, Message: "画像が選択されていません"}
	}

	body, contentType, err := buildMultipartBody(image)
	if err != nil {
		return nil, &Error{Kind: ErrorRequest, Message: "リクエストの構築に失敗", cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &Error{Kind: ErrorRequest, Message: "リクエストの構築に失敗", cause: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	// 非2xxはサーバーエラーとして分類し、任意のmessageフィールドを拾う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:    ErrorServer,
			Status:  resp.StatusCode,
			Message: extractServerMessage(respBody),
		}
	}

	var result AnalysisResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{Kind: ErrorRequest, Message: "解析結果の読み取りに失敗", cause: err}
	}

	return &result, nil
}

// buildMultipartBody は画像1枚のmultipartボディを構築する
func buildMultipartBody(image *capture.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, fileFieldName, "capture"+extForMime(image.MimeType)))
	header.Set("Content-Type", image.MimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}

// classifyTransportError は送信時のエラーを分類する
func classifyTransportError(err error) *Error {
	// タイムアウトの判定
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrorTimeout, cause: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: ErrorTimeout, cause: err}
	}

	// 送信したがレスポンスが無かった
	return &Error{Kind: ErrorNetwork, cause: err}
}

// extractServerMessage はエラーレスポンスボディから任意のmessageを取り出す
func extractServerMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// extForMime はMIMEタイプに対応する拡張子を返す
func extForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
