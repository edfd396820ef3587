package catalog

import (
	"strings"

	"github.com/Telmann/opc-ua-task/internal/domain"
)

// TagSnapshot 单个标签在某一时刻的取值
type TagSnapshot struct {
	NodeID string       `json:"node_id"`
	Name   string       `json:"name"`
	Value  domain.Value `json:"value"`
}

// ObjectSnapshot 某个对象节点下全部直接子变量的快照
type ObjectSnapshot struct {
	Path []string      `json:"path"`
	Tags []TagSnapshot `json:"tags"`
}

// PathOf 从 Objects 之下（含 Objects）到 n 的浏览路径，形如 ["0:Objects", "2:MyObject"]
func (c *Catalog) PathOf(n *Node) []string {
	var segs []string
	for cur := n; cur != nil && cur != c.root; cur = cur.parent {
		segs = append(segs, cur.browseName.String())
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}

// Snapshot 读取 obj 下所有变量的当前值（每个值单独加锁读取，整体不是原子的）
func (c *Catalog) Snapshot(obj *Node) ObjectSnapshot {
	children := c.Children(obj)
	snap := ObjectSnapshot{
		Path: c.PathOf(obj),
		Tags: make([]TagSnapshot, 0, len(children)),
	}
	for _, child := range children {
		if child.class != ClassVariable {
			continue
		}
		snap.Tags = append(snap.Tags, TagSnapshot{
			NodeID: child.id.String(),
			Name:   child.browseName.Name,
			Value:  child.Value(),
		})
	}
	return snap
}

// JoinPath 把浏览路径拼成存储键使用的形式
func JoinPath(path []string) string {
	return strings.Join(path, "/")
}
