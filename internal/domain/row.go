package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// DeviceTablePrefix 自动创建的设备表前缀
	DeviceTablePrefix = "device_"
	deviceSuffixLen   = 6

	// MaxIdentifierLen PostgreSQL 标识符最大字节数（NAMEDATALEN-1）
	MaxIdentifierLen = 63
)

// ValidateIdentifier 校验表名或标签名：非空、不超过 63 字节、不含 NUL
func ValidateIdentifier(field, name string) error {
	switch {
	case name == "":
		return &ValidationError{Field: field, Value: name, Reason: "must not be empty"}
	case len(name) > MaxIdentifierLen:
		return &ValidationError{Field: field, Value: name, Reason: "longer than 63 bytes"}
	case strings.IndexByte(name, 0) >= 0:
		return &ValidationError{Field: field, Value: name, Reason: "contains NUL byte"}
	}
	return nil
}

// TagRow 标签的持久化形式（tag_value 始终是 Encode 的文本）
type TagRow struct {
	ID       int64  `json:"id,omitempty"`
	TagName  string `json:"tag_name"`
	TagType  string `json:"tag_type"`
	TagValue string `json:"tag_value"`
}

// NewDeviceTableName 生成 "device_" + 6 位随机后缀
func NewDeviceTableName() string {
	return DeviceTablePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:deviceSuffixLen]
}

// NewTagRow 由原始标签名和当前值生成持久化行：tag_name 取标识部分，tag_type 取名字中的类型部分
func NewTagRow(rawName string, v Value) (TagRow, error) {
	typ, identifier, err := ParseName(rawName)
	if err != nil {
		return TagRow{}, err
	}
	text, err := Encode(v)
	if err != nil {
		return TagRow{}, err
	}
	return TagRow{TagName: identifier, TagType: typ, TagValue: text}, nil
}
