package domain

import (
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	boolTrue  = "True"
	boolFalse = "False"
	// hexPrefix ByteString 文本前缀，保证与数字文本可区分
	hexPrefix = "0x"
)

// Encode 把标签值编码为持久化文本
//   - Double: 最短十进制表示，整数值补 ".0"（0 -> "0.0"）
//   - Int: 十进制
//   - Boolean: "True" / "False"
//   - ByteString: "0x" + 小写十六进制
//   - XmlElement: 原文
//
// 值的运行时形状与类型不符时返回 *TypeMismatchError
func Encode(v Value) (string, error) {
	switch v.typ {
	case TypeDouble:
		if f, ok := v.v.(float64); ok {
			return formatDouble(f), nil
		}
	case TypeInt:
		if i, ok := v.v.(int64); ok {
			return strconv.FormatInt(i, 10), nil
		}
	case TypeBoolean:
		if b, ok := v.v.(bool); ok {
			if b {
				return boolTrue, nil
			}
			return boolFalse, nil
		}
	case TypeByteString:
		if b, ok := v.v.([]byte); ok {
			return hexPrefix + hex.EncodeToString(b), nil
		}
	case TypeXMLElement:
		if s, ok := v.v.(string); ok {
			return s, nil
		}
	}
	return "", &TypeMismatchError{Type: v.typ, Got: typeName(v.v)}
}

// MustEncode 同 Encode，类型不符视为编程错误直接 panic
func MustEncode(v Value) string {
	s, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return s
}

func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
