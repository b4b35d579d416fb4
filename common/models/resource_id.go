package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// resourceIDSeparator separates a resource's Kind from its unique id in its string form,
// e.g. "user:3c6a9e4e-...".
const resourceIDSeparator = ":"

// resourceIDNamespace seeds deterministic resource ids derived from caller-supplied unique data,
// so the same input always produces the same id.
var resourceIDNamespace = uuid.NewSHA1(uuid.Nil, []byte("mappingtree"))

// ResourceID is a globally unique identifier for a resource, scoped by ResourceKind so that ids
// for different kinds of resource never collide even if their underlying UUIDs do.
type ResourceID struct {
	kind ResourceKind
	id   string
}

// NewResourceID returns a new, randomly generated ResourceID of the specified kind.
func NewResourceID(kind ResourceKind) ResourceID {
	return ResourceID{kind: kind, id: uuid.New().String()}
}

// NewResourceIDFromUniqueData returns a ResourceID of the specified kind, deterministically
// derived from uniqueData. The same kind and uniqueData always produce the same id, which is
// useful for idempotent creation of singleton rows keyed by some natural identifier.
func NewResourceIDFromUniqueData(kind ResourceKind, uniqueData string) ResourceID {
	return ResourceID{kind: kind, id: uuid.NewSHA1(resourceIDNamespace, []byte(uniqueData)).String()}
}

// ParseResourceID parses the "kind:id" string form produced by ResourceID.String.
func ParseResourceID(str string) (ResourceID, error) {
	parts := strings.SplitN(str, resourceIDSeparator, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ResourceID{}, fmt.Errorf("error malformed resource id: %q", str)
	}
	return ResourceID{kind: ResourceKind(parts[0]), id: parts[1]}, nil
}

// Kind returns the ResourceKind this id was minted for.
func (id ResourceID) Kind() ResourceKind {
	return id.kind
}

// Valid reports whether the id has been populated.
func (id ResourceID) Valid() bool {
	return id.id != ""
}

// IsZero reports whether this is the zero value ResourceID.
func (id ResourceID) IsZero() bool {
	return id.id == "" && id.kind == ""
}

func (id ResourceID) String() string {
	if id.id == "" {
		return ""
	}
	return fmt.Sprintf("%s%s%s", id.kind, resourceIDSeparator, id.id)
}

func (id *ResourceID) Scan(src interface{}) error {
	if src == nil {
		*id = ResourceID{}
		return nil
	}
	str, ok := src.(string)
	if !ok {
		return fmt.Errorf("error expected resource id to be string, got: %#v", src)
	}
	if str == "" {
		*id = ResourceID{}
		return nil
	}
	parsed, err := ParseResourceID(str)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ResourceID) Value() (driver.Value, error) {
	if id.id == "" {
		return nil, nil
	}
	return id.String(), nil
}
