package domain

import (
	"fmt"
	"strings"
)

// NameDelimiter 标签名中类型与标识的分隔符
const NameDelimiter = "_"

// ParseName 按第一个 "_" 拆分 "{type}_{identifier}"
// 类型部分不做枚举校验；标识中剩余的 "_" 原样保留
func ParseName(raw string) (typ string, identifier string, err error) {
	typ, identifier, ok := strings.Cut(raw, NameDelimiter)
	if !ok {
		return "", "", &MalformedNameError{Name: raw}
	}
	return typ, identifier, nil
}

// FormatName 生成模拟器标签名 "{Type}_tag{index}"
func FormatName(t TagType, index int) string {
	return fmt.Sprintf("%s%stag%d", t, NameDelimiter, index)
}
