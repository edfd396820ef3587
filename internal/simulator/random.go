package simulator

import (
	"fmt"
	"math/rand"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// 取值范围
const (
	DoubleMin = 1.5
	DoubleMax = 150.65
	IntMin    = 1
	IntMax    = 150
	XMLMax    = 150
)

// Randomizer 按类型生成新的随机值；底层 *rand.Rand 非并发安全，只在更新循环所在 goroutine 使用
type Randomizer struct {
	rng *rand.Rand
}

// NewRandomizer 使用给定种子创建
func NewRandomizer(seed int64) *Randomizer {
	return &Randomizer{rng: rand.New(rand.NewSource(seed))}
}

// Intn 供 catalog.CreateTags 随机选择类型
func (r *Randomizer) Intn(n int) int {
	return r.rng.Intn(n)
}

// Next 生成与类型对应的新值
//   - Double: [1.5, 150.65] 均匀分布
//   - Int: [1, 150] 均匀整数
//   - Boolean: 等概率 true/false
//   - ByteString: 两个独立随机字节
//   - XmlElement: <result>{n}</result>，n ∈ [0, 150]
func (r *Randomizer) Next(t domain.TagType) domain.Value {
	switch t {
	case domain.TypeDouble:
		return domain.DoubleValue(DoubleMin + r.rng.Float64()*(DoubleMax-DoubleMin))
	case domain.TypeInt:
		return domain.IntValue(int64(IntMin + r.rng.Intn(IntMax-IntMin+1)))
	case domain.TypeBoolean:
		return domain.BoolValue(r.rng.Intn(2) == 1)
	case domain.TypeByteString:
		return domain.ByteStringValue([]byte{byte(r.rng.Intn(256)), byte(r.rng.Intn(256))})
	case domain.TypeXMLElement:
		return domain.XMLValue(fmt.Sprintf("<result>%d</result>", r.rng.Intn(XMLMax+1)))
	}
	panic(fmt.Sprintf("simulator: unsupported tag type %q", t))
}
