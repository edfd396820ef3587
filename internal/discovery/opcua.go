package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Telmann/opc-ua-task/internal/domain"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

// DefaultEndpoint 模拟器默认监听地址
const DefaultEndpoint = "opc.tcp://0.0.0.0:4840/freeopcua/server/"

// OPCUAClient 通过 OPC UA 二进制协议访问远端服务器（无安全策略、匿名）
type OPCUAClient struct {
	endpoint string
	timeout  time.Duration
	client   *opcua.Client
}

// NewOPCUAClient 创建 OPC UA 客户端；timeout 为 0 时使用库默认值
func NewOPCUAClient(endpoint string, timeout time.Duration) *OPCUAClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &OPCUAClient{endpoint: endpoint, timeout: timeout}
}

type opcuaNode struct {
	node *opcua.Node
}

func (n opcuaNode) BrowseName(ctx context.Context) (string, error) {
	qn, err := n.node.BrowseName(ctx)
	if err != nil {
		return "", err
	}
	return qn.Name, nil
}

func (n opcuaNode) Value(ctx context.Context) (domain.Value, error) {
	v, err := n.node.Value(ctx)
	if err != nil {
		return domain.Value{}, err
	}
	if v == nil {
		return domain.Value{}, fmt.Errorf("%w: node %s has no value", domain.ErrTypeMismatch, n.node.ID)
	}
	return FromVariant(v.Value())
}

func (c *OPCUAClient) Connect(ctx context.Context) error {
	opts := []opcua.Option{
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.AuthAnonymous(),
		opcua.AutoReconnect(false),
	}
	if c.timeout > 0 {
		opts = append(opts, opcua.RequestTimeout(c.timeout), opcua.DialTimeout(c.timeout))
	}
	client, err := opcua.NewClient(c.endpoint, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrConnection, c.endpoint, err)
	}
	c.client = client
	return nil
}

func (c *OPCUAClient) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close(ctx)
	c.client = nil
	return err
}

func (c *OPCUAClient) Root(context.Context) (Node, error) {
	if c.client == nil {
		return nil, fmt.Errorf("%w: client is not connected", domain.ErrConnection)
	}
	return opcuaNode{node: c.client.Node(ua.NewNumericNodeID(0, id.RootFolder))}, nil
}

func (c *OPCUAClient) ResolvePath(ctx context.Context, start Node, segments []string) (Node, error) {
	from, ok := start.(opcuaNode)
	if !ok {
		return nil, fmt.Errorf("unexpected node type %T", start)
	}
	path := make([]*ua.QualifiedName, len(segments))
	for i, s := range segments {
		seg := ParseSegment(s)
		path[i] = &ua.QualifiedName{NamespaceIndex: seg.Namespace, Name: seg.Name}
	}
	nodeID, err := from.node.TranslateBrowsePathsToNodeIDs(ctx, path)
	if err != nil {
		if isNoMatch(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrPathNotFound, err)
		}
		return nil, err
	}
	return opcuaNode{node: c.client.Node(nodeID)}, nil
}

func (c *OPCUAClient) Children(ctx context.Context, parent Node) ([]Node, error) {
	p, ok := parent.(opcuaNode)
	if !ok {
		return nil, fmt.Errorf("unexpected node type %T", parent)
	}
	children, err := p.node.Children(ctx, id.HierarchicalReferences, ua.NodeClassVariable)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(children))
	for _, child := range children {
		out = append(out, opcuaNode{node: child})
	}
	return out, nil
}

func isNoMatch(err error) bool {
	var status ua.StatusCode
	if !errors.As(err, &status) {
		return false
	}
	switch status {
	case ua.StatusBadNoMatch, ua.StatusBadNodeIDUnknown, ua.StatusBadBrowseNameInvalid:
		return true
	}
	return false
}

// FromVariant 把 OPC UA 变体中的 Go 值映射到标签值
func FromVariant(raw interface{}) (domain.Value, error) {
	switch x := raw.(type) {
	case float64:
		return domain.DoubleValue(x), nil
	case float32:
		return domain.DoubleValue(float64(x)), nil
	case int8, int16, int32, int64, uint8, uint16, uint32:
		return domain.NewValue(domain.TypeInt, x)
	case uint64:
		if x > math.MaxInt64 {
			return domain.Value{}, &domain.TypeMismatchError{Type: domain.TypeInt, Got: "uint64 overflow"}
		}
		return domain.IntValue(int64(x)), nil
	case bool:
		return domain.BoolValue(x), nil
	case []byte:
		return domain.ByteStringValue(x), nil
	case ua.XMLElement:
		return domain.XMLValue(string(x)), nil
	case *ua.XMLElement:
		if x == nil {
			return domain.XMLValue(""), nil
		}
		return domain.XMLValue(string(*x)), nil
	}
	return domain.Value{}, &domain.TypeMismatchError{Got: fmt.Sprintf("%T", raw)}
}
