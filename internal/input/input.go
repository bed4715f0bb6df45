// Package input はHTTPリクエストの生の入力値を検証済みの値へ変換する境界を提供する。
//
// 数値・真偽値の型揺れ（"9" と 9、"true" と 1 など）の吸収と、
// 自由記述テキストのサニタイズはすべてこのパッケージで行い、
// ハンドラーやドメイン層で個別に型変換を行わない。
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy はすべてのHTMLを除去する厳格なポリシー。
var textPolicy = bluemonday.StrictPolicy()

// Int64 はJSONの数値または数値文字列を受け付ける整数。
// Set は値が送信されたか、Valid は整数として解釈できたかを表す。
type Int64 struct {
	Value int64
	Set   bool
	Valid bool
	Raw   string
}

// UnmarshalJSON はJSON値をInt64として解釈する。
// 解釈できない値でもエラーを返さず Valid=false として記録し、
// 呼び出し側でドメインのバリデーションエラーに変換できるようにする。
func (i *Int64) UnmarshalJSON(data []byte) error {
	*i = Int64{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	i.Set = true

	var raw string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			i.Set = false
			return nil
		}
	} else {
		raw = string(trimmed)
	}
	i.Raw = raw

	v, ok := ParseInt64(raw)
	i.Value = v
	i.Valid = ok
	return nil
}

// ParseInt64 は正の整数IDとして文字列を解釈する。
// 0以下や数値以外の場合は ok=false を返す。
func ParseInt64(raw string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// String はJSONの文字列または数値を受け付ける文字列。
// テーブル番号や電話番号のように数値で送られることがある値に使う。
type String string

// UnmarshalJSON はJSONの文字列・数値を文字列として解釈する。null は空文字列になる。
func (s *String) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = ""
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*s = String(raw)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("invalid string value: %s", trimmed)
	}
	*s = String(n.String())
	return nil
}

// Bool はJSONの真偽値・数値・文字列を受け付ける真偽値。
type Bool struct {
	Value bool
	Set   bool
}

// UnmarshalJSON はJSON値をBoolとして解釈する。
// true/false、1/0、"true"/"false"、"1"/"0"、"yes"/"no"、"on"/"off" を受け付ける。
func (b *Bool) UnmarshalJSON(data []byte) error {
	*b = Bool{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	raw := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
	}

	v, ok := ParseBool(raw)
	if !ok {
		return fmt.Errorf("invalid boolean value: %q", raw)
	}
	b.Value = v
	b.Set = true
	return nil
}

// ParseBool は文字列を真偽値として解釈する。
// クエリパラメータやフォーム値の真偽値変換は必ずこの関数を使う。
func ParseBool(raw string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Text は自由記述テキストからHTMLタグを除去し前後の空白を取り除く。
// bluemondayがエスケープした実体参照は元の文字に戻して保存する（応答はJSONのため）。
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// NormalizePhone は電話番号から数字以外の文字をすべて取り除く。
// ゲストユーザーの同一性判定に使うキーとなる。
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
