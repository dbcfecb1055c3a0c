package upload

import (
	"strings"
	"testing"
)

// TestCollapsedText_Short は150文字以下のテキストがそのまま返ることを検証する
func TestCollapsedText_Short(t *testing.T) {
	result := &AnalysisResult{Text: "abc"}

	if got := result.CollapsedText(); got != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
	if result.Truncated() {
		t.Error("Expected short text not to be truncated")
	}
}

// TestCollapsedText_Long は長いテキストの切り詰めを検証する
func TestCollapsedText_Long(t *testing.T) {
	long := strings.Repeat("a", 200)
	result := &AnalysisResult{Text: long}

	collapsed := result.CollapsedText()
	runes := []rune(collapsed)

	// 先頭150文字 + 省略記号
	if len(runes) != 151 {
		t.Fatalf("Expected 151 runes, got %d", len(runes))
	}
	if string(runes[:150]) != strings.Repeat("a", 150) {
		t.Error("Expected the first 150 characters to be preserved")
	}
	if runes[150] != '…' {
		t.Errorf("Expected trailing ellipsis, got %q", runes[150])
	}

	if !result.Truncated() {
		t.Error("Expected long text to be truncated")
	}

	// 元のテキストは変更されない
	if result.Text != long {
		t.Error("Expected original text to remain unmodified")
	}
}

// TestCollapsedText_Newlines は改行が含まれないことを検証する
func TestCollapsedText_Newlines(t *testing.T) {
	result := &AnalysisResult{Text: "一行目\n二行目\r\n三行目\r四行目"}

	collapsed := result.CollapsedText()
	if strings.ContainsAny(collapsed, "\r\n") {
		t.Errorf("Expected no newlines in collapsed text, got %q", collapsed)
	}
	if collapsed != "一行目 二行目 三行目 四行目" {
		t.Errorf("Unexpected collapsed text: %q", collapsed)
	}
}

// TestCollapsedText_ExactLimit はちょうど150文字のテキストが切り詰められないことを検証する
func TestCollapsedText_ExactLimit(t *testing.T) {
	exact := strings.Repeat("あ", 150)
	result := &AnalysisResult{Text: exact}

	if got := result.CollapsedText(); got != exact {
		t.Error("Expected exact-limit text to be returned unmodified")
	}
	if result.Truncated() {
		t.Error("Expected exact-limit text not to be truncated")
	}
}
