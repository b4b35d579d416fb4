package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// NodeKeySeparator delimits segments of a NodeKey.
const NodeKeySeparator = ":"

// NodeKey is the string-encoded address of a node in the asset tree, e.g. "1:8:3".
// Segments are non-empty; the key for a root node has exactly one segment.
type NodeKey string

// RootNodeKey is the parent key shared by every root-level node.
const RootNodeKey NodeKey = ""

func (k NodeKey) String() string {
	return string(k)
}

// Segments splits the key into its non-empty path segments, root first.
func (k NodeKey) Segments() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), NodeKeySeparator)
}

// Parent returns the key's parent key: the prefix up to (excluding) the last separator,
// or RootNodeKey if k is already a root key.
func (k NodeKey) Parent() NodeKey {
	i := strings.LastIndex(string(k), NodeKeySeparator)
	if i == -1 {
		return RootNodeKey
	}
	return NodeKey(k[:i])
}

// Ancestors returns every strict prefix of k, root-first. The result excludes k itself.
func (k NodeKey) Ancestors() []NodeKey {
	segments := k.Segments()
	if len(segments) <= 1 {
		return nil
	}
	ancestors := make([]NodeKey, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		ancestors = append(ancestors, NodeKey(strings.Join(segments[:i], NodeKeySeparator)))
	}
	return ancestors
}

// Depth returns the number of segments in the key; a root key has depth 1.
func (k NodeKey) Depth() int {
	return len(k.Segments())
}

// IsDescendantOf reports whether k lies in the subtree rooted at other, i.e. k == other
// or k starts with other + NodeKeySeparator.
func (k NodeKey) IsDescendantOf(other NodeKey) bool {
	if k == other {
		return true
	}
	return strings.HasPrefix(string(k), string(other)+NodeKeySeparator)
}

// IsStrictDescendantOf reports whether k is a proper descendant of other.
func (k NodeKey) IsStrictDescendantOf(other NodeKey) bool {
	return k != other && k.IsDescendantOf(other)
}

// SubtreePrefix returns the SQL LIKE-style prefix "K:" used to match descendants of k,
// the index-friendly encoding of the subtree_match(K) predicate.
func (k NodeKey) SubtreePrefix() string {
	return string(k) + NodeKeySeparator
}

func (k NodeKey) Valid() bool {
	return k.Validate() == nil
}

// Validate checks that every segment is non-empty and that the key has no leading or
// trailing separator, returning a MalformedKey-flavoured error otherwise.
func (k NodeKey) Validate() error {
	if k == "" {
		return nil // root keys are represented by the empty key
	}
	var result *multierror.Error
	if strings.HasPrefix(string(k), NodeKeySeparator) || strings.HasSuffix(string(k), NodeKeySeparator) {
		result = multierror.Append(result, errors.Errorf("node key %q must not have a leading or trailing separator", k))
	}
	for _, segment := range k.Segments() {
		if segment == "" {
			result = multierror.Append(result, errors.Errorf("node key %q contains an empty segment", k))
		}
	}
	return result.ErrorOrNil()
}

func (k *NodeKey) Scan(src interface{}) error {
	if src == nil {
		*k = ""
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected node key to be string, got: %#v", src)
	}
	*k = NodeKey(str)
	return nil
}

func (k NodeKey) Value() (driver.Value, error) {
	return string(k), nil
}
