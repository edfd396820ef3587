package catalog

import (
	"fmt"
	"sync"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// NodeID 节点标识：命名空间下标 + 字符串标识（ns=2;s=Double_tag0）
type NodeID struct {
	Namespace uint16
	ID        string
}

func (id NodeID) String() string {
	return fmt.Sprintf("ns=%d;s=%s", id.Namespace, id.ID)
}

// QualifiedName 浏览名（命名空间下标 + 名称）
type QualifiedName struct {
	NamespaceIndex uint16
	Name           string
}

func (q QualifiedName) String() string {
	return fmt.Sprintf("%d:%s", q.NamespaceIndex, q.Name)
}

// NodeClass 节点类别
type NodeClass int

const (
	ClassObject NodeClass = iota
	ClassVariable
)

// Node 节点树中的一个对象或变量
// 变量的值由 mu 保护：写入整体替换，读取总是拿到最近一次完整写入的值
type Node struct {
	id         NodeID
	browseName QualifiedName
	class      NodeClass
	parent     *Node

	// children 由所属 Catalog 的锁保护
	children []*Node

	typ      domain.TagType
	mu       sync.RWMutex
	value    domain.Value
	writable bool
}

// ID 节点标识
func (n *Node) ID() NodeID { return n.id }

// BrowseName 浏览名
func (n *Node) BrowseName() QualifiedName { return n.browseName }

// Class 节点类别
func (n *Node) Class() NodeClass { return n.class }

// Parent 父节点（根节点为 nil）
func (n *Node) Parent() *Node { return n.parent }

// Type 变量的声明类型（对象节点为空）
func (n *Node) Type() domain.TagType { return n.typ }

// Writable 是否允许写入
func (n *Node) Writable() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.writable
}

// SetWritable 设置可写标志
func (n *Node) SetWritable(w bool) {
	n.mu.Lock()
	n.writable = w
	n.mu.Unlock()
}

// Value 当前值
func (n *Node) Value() domain.Value {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value
}

// SetValue 写入新值；类型必须与声明类型一致，节点必须可写
func (n *Node) SetValue(v domain.Value) error {
	if n.class != ClassVariable {
		return fmt.Errorf("node %s is not a variable", n.id)
	}
	if v.Type() != n.typ {
		return &domain.TypeMismatchError{Type: n.typ, Got: string(v.Type())}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.writable {
		return fmt.Errorf("node %s is read-only", n.id)
	}
	n.value = v
	return nil
}
