package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/Telmann/opc-ua-task/internal/catalog"
	"github.com/Telmann/opc-ua-task/internal/domain"
)

// LocalClient 直接访问进程内的节点树（模拟器与桥接同进程运行时使用，也用于测试）
type LocalClient struct {
	catalog *catalog.Catalog

	mu        sync.Mutex
	connected bool
}

// NewLocalClient 创建进程内客户端
func NewLocalClient(c *catalog.Catalog) *LocalClient {
	return &LocalClient{catalog: c}
}

type localNode struct {
	node *catalog.Node
}

func (n localNode) BrowseName(context.Context) (string, error) {
	return n.node.BrowseName().Name, nil
}

func (n localNode) Value(context.Context) (domain.Value, error) {
	if n.node.Class() != catalog.ClassVariable {
		return domain.Value{}, fmt.Errorf("node %s is not a variable", n.node.ID())
	}
	return n.node.Value(), nil
}

func (c *LocalClient) Connect(context.Context) error {
	if c.catalog == nil {
		return fmt.Errorf("%w: no local address space", domain.ErrConnection)
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *LocalClient) Close(context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *LocalClient) checkConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return fmt.Errorf("%w: client is not connected", domain.ErrConnection)
	}
	return nil
}

func (c *LocalClient) Root(context.Context) (Node, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	return localNode{node: c.catalog.Root()}, nil
}

func (c *LocalClient) ResolvePath(_ context.Context, start Node, segments []string) (Node, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	from, ok := start.(localNode)
	if !ok {
		return nil, fmt.Errorf("unexpected node type %T", start)
	}
	names := make([]catalog.QualifiedName, len(segments))
	for i, s := range segments {
		seg := ParseSegment(s)
		names[i] = catalog.QualifiedName{NamespaceIndex: seg.Namespace, Name: seg.Name}
	}
	n, err := c.catalog.Resolve(from.node, names)
	if err != nil {
		return nil, err
	}
	return localNode{node: n}, nil
}

func (c *LocalClient) Children(_ context.Context, parent Node) ([]Node, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	p, ok := parent.(localNode)
	if !ok {
		return nil, fmt.Errorf("unexpected node type %T", parent)
	}
	var out []Node
	for _, child := range c.catalog.Children(p.node) {
		if child.Class() == catalog.ClassVariable {
			out = append(out, localNode{node: child})
		}
	}
	return out, nil
}
