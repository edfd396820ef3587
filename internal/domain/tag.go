// Package domain 标签数据模型：五种值类型、取值编码、标签名解析、持久化行和错误分类。
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TagType 标签值类型（封闭枚举）
type TagType string

const (
	TypeDouble     TagType = "Double"
	TypeInt        TagType = "Int"
	TypeBoolean    TagType = "Boolean"
	TypeByteString TagType = "ByteString"
	TypeXMLElement TagType = "XmlElement"
)

// TagTypes 全部支持的类型，顺序固定（模拟器按下标随机选择）
var TagTypes = []TagType{TypeDouble, TypeInt, TypeBoolean, TypeByteString, TypeXMLElement}

// Valid 判断是否属于五种类型之一
func (t TagType) Valid() bool {
	switch t {
	case TypeDouble, TypeInt, TypeBoolean, TypeByteString, TypeXMLElement:
		return true
	}
	return false
}

func (t TagType) String() string { return string(t) }

// ParseTagType 校验外部输入的类型名（手动添加标签时使用）
func ParseTagType(s string) (TagType, error) {
	t := TagType(s)
	if !t.Valid() {
		return "", &ValidationError{
			Field:  "tag_type",
			Value:  s,
			Reason: fmt.Sprintf("must be one of %v", TagTypes),
		}
	}
	return t, nil
}

// Value 与类型绑定的标签值；只能通过构造函数创建，保证运行时表示与类型一致
type Value struct {
	typ TagType
	v   interface{}
}

// DoubleValue 64 位浮点值
func DoubleValue(f float64) Value { return Value{typ: TypeDouble, v: f} }

// IntValue 有符号整数值
func IntValue(i int64) Value { return Value{typ: TypeInt, v: i} }

// BoolValue 布尔值
func BoolValue(b bool) Value { return Value{typ: TypeBoolean, v: b} }

// ByteStringValue 原始字节序列（复制一份，调用方之后修改切片不影响取值）
func ByteStringValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{typ: TypeByteString, v: cp}
}

// XMLValue XML 片段文本
func XMLValue(s string) Value { return Value{typ: TypeXMLElement, v: s} }

// NewValue 按声明类型包装一个运行时值，形状不匹配返回 *TypeMismatchError
// 整数接受 int/int8/int16/int32/int64/uint8/uint16/uint32，XML 接受 string
func NewValue(t TagType, raw interface{}) (Value, error) {
	switch t {
	case TypeDouble:
		switch x := raw.(type) {
		case float64:
			return DoubleValue(x), nil
		case float32:
			return DoubleValue(float64(x)), nil
		}
	case TypeInt:
		switch x := raw.(type) {
		case int:
			return IntValue(int64(x)), nil
		case int8:
			return IntValue(int64(x)), nil
		case int16:
			return IntValue(int64(x)), nil
		case int32:
			return IntValue(int64(x)), nil
		case int64:
			return IntValue(x), nil
		case uint8:
			return IntValue(int64(x)), nil
		case uint16:
			return IntValue(int64(x)), nil
		case uint32:
			return IntValue(int64(x)), nil
		}
	case TypeBoolean:
		if x, ok := raw.(bool); ok {
			return BoolValue(x), nil
		}
	case TypeByteString:
		if x, ok := raw.([]byte); ok {
			return ByteStringValue(x), nil
		}
	case TypeXMLElement:
		if x, ok := raw.(string); ok {
			return XMLValue(x), nil
		}
	}
	return Value{}, &TypeMismatchError{Type: t, Got: fmt.Sprintf("%T", raw)}
}

// DefaultValue 新建标签时的初始值
func DefaultValue(t TagType) Value {
	switch t {
	case TypeDouble:
		return DoubleValue(0.0)
	case TypeInt:
		return IntValue(0)
	case TypeBoolean:
		return BoolValue(false)
	case TypeByteString:
		return ByteStringValue([]byte("0"))
	case TypeXMLElement:
		return XMLValue("<value>random</value>")
	}
	panic(fmt.Sprintf("domain: no default value for tag type %q", t))
}

// Type 值的声明类型
func (v Value) Type() TagType { return v.typ }

// IsZero 未初始化的值
func (v Value) IsZero() bool { return v.typ == "" }

// Interface 返回底层运行时值（ByteString 返回副本）
func (v Value) Interface() interface{} {
	if b, ok := v.v.([]byte); ok {
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp
	}
	return v.v
}

// Float 取 Double 值
func (v Value) Float() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok
}

// Int 取 Int 值
func (v Value) Int() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok
}

// Bool 取 Boolean 值
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// Bytes 取 ByteString 值（副本）
func (v Value) Bytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true
}

// XML 取 XmlElement 值
func (v Value) XML() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Equal 类型与取值都相同
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	a, errA := Encode(v)
	b, errB := Encode(o)
	return errA == nil && errB == nil && a == b
}

// String 便于日志输出，等价于 Encode，失败时给出占位文本
func (v Value) String() string {
	s, err := Encode(v)
	if err != nil {
		return "<invalid " + string(v.typ) + ">"
	}
	return s
}

// wireValue Redis 镜像等传输使用的 JSON 形式（ByteString 按 encoding/json 规则 base64）
type wireValue struct {
	Type  TagType         `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON 输出 {"type":..., "value":...}
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.typ.Valid() {
		return nil, &TypeMismatchError{Type: v.typ, Got: fmt.Sprintf("%T", v.v)}
	}
	raw, err := json.Marshal(v.v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.typ, Value: raw})
}

// UnmarshalJSON 解析 MarshalJSON 的输出
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var (
		parsed Value
		err    error
	)
	switch w.Type {
	case TypeDouble:
		var f float64
		err = json.Unmarshal(w.Value, &f)
		parsed = DoubleValue(f)
	case TypeInt:
		var n json.Number
		if err = json.Unmarshal(w.Value, &n); err == nil {
			var i int64
			i, err = strconv.ParseInt(n.String(), 10, 64)
			parsed = IntValue(i)
		}
	case TypeBoolean:
		var b bool
		err = json.Unmarshal(w.Value, &b)
		parsed = BoolValue(b)
	case TypeByteString:
		var b []byte
		err = json.Unmarshal(w.Value, &b)
		parsed = ByteStringValue(b)
	case TypeXMLElement:
		var s string
		err = json.Unmarshal(w.Value, &s)
		parsed = XMLValue(s)
	default:
		return &ValidationError{Field: "type", Value: string(w.Type), Reason: "unknown tag type"}
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s value: %w", w.Type, err)
	}
	*v = parsed
	return nil
}
