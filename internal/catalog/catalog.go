// Package catalog 模拟数据源的内存节点树：根对象下挂若干带类型、可写的标签变量。
package catalog

import (
	"fmt"
	"sync"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

const (
	// StandardNamespaceURI 下标 0 的标准命名空间
	StandardNamespaceURI = "http://opcfoundation.org/UA/"
	// LocalNamespaceURI 下标 1 的服务器本地命名空间
	LocalNamespaceURI = "urn:opc-ua-task:tagsim"
)

// RandomSource 随机类型选择所需的最小接口（*rand.Rand 满足）
type RandomSource interface {
	Intn(n int) int
}

// Entry 模拟器持有的 (节点, 类型) 对，更新循环据此定位节点而无需重新解析名字
type Entry struct {
	Node *Node
	Type domain.TagType
}

// Catalog 节点树；Catalog 是其所有标签的唯一所有者
type Catalog struct {
	mu         sync.RWMutex
	namespaces []string
	root       *Node
	objects    *Node
	byID       map[NodeID]*Node
	tags       []Entry
}

// New 创建只包含 Root/Objects 两个标准节点的空节点树
func New() *Catalog {
	root := &Node{
		id:         NodeID{Namespace: 0, ID: "Root"},
		browseName: QualifiedName{NamespaceIndex: 0, Name: "Root"},
		class:      ClassObject,
	}
	objects := &Node{
		id:         NodeID{Namespace: 0, ID: "Objects"},
		browseName: QualifiedName{NamespaceIndex: 0, Name: "Objects"},
		class:      ClassObject,
		parent:     root,
	}
	root.children = []*Node{objects}

	return &Catalog{
		namespaces: []string{StandardNamespaceURI, LocalNamespaceURI},
		root:       root,
		objects:    objects,
		byID: map[NodeID]*Node{
			root.id:    root,
			objects.id: objects,
		},
	}
}

// RegisterNamespace 注册命名空间并返回下标；重复注册返回已有下标
func (c *Catalog) RegisterNamespace(uri string) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ns := range c.namespaces {
		if ns == uri {
			return uint16(i)
		}
	}
	c.namespaces = append(c.namespaces, uri)
	return uint16(len(c.namespaces) - 1)
}

// Namespaces 命名空间表副本
func (c *Catalog) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.namespaces))
	copy(out, c.namespaces)
	return out
}

// Root 根节点
func (c *Catalog) Root() *Node { return c.root }

// Objects 标准 Objects 文件夹
func (c *Catalog) Objects() *Node { return c.objects }

// AddObject 在 parent 下添加对象节点，标识为 ns=<ns>;s=<name>
func (c *Catalog) AddObject(parent *Node, ns uint16, name string) (*Node, error) {
	node := &Node{
		id:         NodeID{Namespace: ns, ID: name},
		browseName: QualifiedName{NamespaceIndex: ns, Name: name},
		class:      ClassObject,
	}
	if err := c.attach(parent, node); err != nil {
		return nil, err
	}
	return node, nil
}

// AddVariable 在 parent 下添加变量节点，初始值决定其类型
func (c *Catalog) AddVariable(parent *Node, id NodeID, name string, initial domain.Value) (*Node, error) {
	if !initial.Type().Valid() {
		return nil, &domain.TypeMismatchError{Type: initial.Type(), Got: "uninitialized value"}
	}
	node := &Node{
		id:         id,
		browseName: QualifiedName{NamespaceIndex: id.Namespace, Name: name},
		class:      ClassVariable,
		typ:        initial.Type(),
		value:      initial,
	}
	if err := c.attach(parent, node); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tags = append(c.tags, Entry{Node: node, Type: node.typ})
	c.mu.Unlock()
	return node, nil
}

func (c *Catalog) attach(parent *Node, node *Node) error {
	if parent == nil || parent.class != ClassObject {
		return fmt.Errorf("parent of %s must be an object node", node.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(node.id.Namespace) >= len(c.namespaces) {
		return fmt.Errorf("namespace index %d is not registered", node.id.Namespace)
	}
	if c.byID[parent.id] != parent {
		return fmt.Errorf("parent %s does not belong to this catalog", parent.id)
	}
	if _, exists := c.byID[node.id]; exists {
		return fmt.Errorf("node %s already exists", node.id)
	}
	node.parent = parent
	parent.children = append(parent.children, node)
	c.byID[node.id] = node
	return nil
}

// CreateTags 在 obj 下创建 num 个随机类型的可写标签 "{Type}_tag{i}"，标识为 ns=<ns>;s=<名字>
func (c *Catalog) CreateTags(obj *Node, ns uint16, num int, rng RandomSource) ([]Entry, error) {
	if num < 0 {
		return nil, fmt.Errorf("tag count must not be negative: %d", num)
	}
	created := make([]Entry, 0, num)
	for i := 0; i < num; i++ {
		typ := domain.TagTypes[rng.Intn(len(domain.TagTypes))]
		name := domain.FormatName(typ, i)
		node, err := c.AddVariable(obj, NodeID{Namespace: ns, ID: name}, name, domain.DefaultValue(typ))
		if err != nil {
			return nil, fmt.Errorf("failed to create tag %s: %w", name, err)
		}
		node.SetWritable(true)
		created = append(created, Entry{Node: node, Type: typ})
	}
	return created, nil
}

// Tags 所有变量节点，按插入顺序
func (c *Catalog) Tags() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.tags))
	copy(out, c.tags)
	return out
}

// Lookup 按标识查找节点
func (c *Catalog) Lookup(id NodeID) (*Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byID[id]
	return n, ok
}

// Children 直接子节点副本，按插入顺序
func (c *Catalog) Children(n *Node) []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Resolve 从 start 开始逐级按浏览名查找，任一级不存在返回 domain.ErrPathNotFound
func (c *Catalog) Resolve(start *Node, path []QualifiedName) (*Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur := start
	for _, seg := range path {
		var next *Node
		for _, child := range cur.children {
			if child.browseName == seg {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %s under %s", domain.ErrPathNotFound, seg, cur.id)
		}
		cur = next
	}
	return cur, nil
}
