package store_test

import (
	"context"
	"time"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/models"
	"github.com/jumpserver/mappingtree/server/store"
	"github.com/jumpserver/mappingtree/server/store/assets"
	"github.com/jumpserver/mappingtree/server/store/group_memberships"
	"github.com/jumpserver/mappingtree/server/store/groups"
	"github.com/jumpserver/mappingtree/server/store/nodes"
	"github.com/jumpserver/mappingtree/server/store/permissions"
	"github.com/jumpserver/mappingtree/server/store/users"
)

// Fixture bundles the stores a test needs to build up a grant graph (nodes, assets, permissions,
// users) ahead of exercising the rebuilder, query engine or invalidation bus against it.
type Fixture struct {
	DB          *store.DB
	Users       *users.UserStore
	Nodes       *nodes.NodeStore
	Assets      *assets.AssetStore
	AssetNodes  *assets.AssetNodeStore
	Permissions *permissions.PermissionStore
	Links       *permissions.LinkStore
	Groups      *groups.GroupStore
	Memberships *group_memberships.GroupMembershipStore
}

// NewTestLogFactory builds a stdout logrus LogFactory with every subsystem at its default level,
// for use by tests that need a LogFactory but don't care about log output.
func NewTestLogFactory() logger.LogFactory {
	registry, err := logger.NewLogRegistry("")
	if err != nil {
		panic(err)
	}
	return logger.MakeLogrusLogFactoryStdOut(registry)
}

func NewFixture(db *store.DB, logFactory logger.LogFactory) *Fixture {
	return &Fixture{
		DB:          db,
		Users:       users.NewUserStore(db, logFactory),
		Nodes:       nodes.NewNodeStore(db, logFactory),
		Assets:      assets.NewAssetStore(db, logFactory),
		AssetNodes:  assets.NewAssetNodeStore(db),
		Permissions: permissions.NewPermissionStore(db, logFactory),
		Links:       permissions.NewLinkStore(db),
		Groups:      groups.NewGroupStore(db, logFactory),
		Memberships: group_memberships.NewGroupMembershipStore(db, logFactory),
	}
}

func Now() models.Time {
	return models.NewTime(time.Now())
}

// MakeUser creates and persists a user with the given username.
func (f *Fixture) MakeUser(ctx context.Context, username string) *models.User {
	u := models.NewUser(Now(), models.ResourceName(username))
	mustNoError(f.Users.Create(ctx, nil, u))
	return u
}

// MakeNode creates and persists a node at key, with its value defaulting to the key string.
func (f *Fixture) MakeNode(ctx context.Context, key models.NodeKey) *models.Node {
	n := models.NewNode(Now(), key, key.Parent(), key.String())
	mustNoError(f.Nodes.Create(ctx, nil, n))
	return n
}

// TestOrganizationID is a stand-in organization id for fixtures that don't exercise tenant
// scoping directly.
var TestOrganizationID = models.NewResourceID("organization")

// MakeAsset creates and persists an asset linked to the given nodes.
func (f *Fixture) MakeAsset(ctx context.Context, name string, nodeIDs ...models.NodeID) *models.Asset {
	a := models.NewAsset(Now(), models.ResourceName(name), models.PlatformLinux, "ssh", TestOrganizationID)
	mustNoError(f.Assets.Create(ctx, nil, a))
	for _, nodeID := range nodeIDs {
		mustNoError(f.AssetNodes.Link(ctx, nil, a.ID, nodeID))
	}
	return a
}

// MakePermission creates a permission and links it directly to userID, granting the given nodes
// and assets.
func (f *Fixture) MakePermission(ctx context.Context, name string, userID models.UserID, nodeIDs []models.NodeID, assetIDs []models.AssetID) *models.Permission {
	p := models.NewPermission(Now(), models.ResourceName(name), "")
	mustNoError(f.Permissions.Create(ctx, nil, p))
	mustNoError(f.Links.AddUser(ctx, nil, p.ID, userID))
	for _, nodeID := range nodeIDs {
		mustNoError(f.Links.AddNode(ctx, nil, p.ID, nodeID))
	}
	for _, assetID := range assetIDs {
		mustNoError(f.Links.AddAsset(ctx, nil, p.ID, assetID))
	}
	return p
}

// MakeGroup creates and persists a group with the given name.
func (f *Fixture) MakeGroup(ctx context.Context, name string) *models.Group {
	g := models.NewGroup(Now(), models.ResourceName(name), "")
	mustNoError(f.Groups.Create(ctx, nil, g))
	return g
}

// AddMember adds userID to groupID.
func (f *Fixture) AddMember(ctx context.Context, groupID models.GroupID, userID models.UserID) {
	m := models.NewGroupMembership(Now(), groupID, userID, models.TestsSystem)
	mustNoError(f.Memberships.Create(ctx, nil, m))
}

// MakeGroupPermission creates a permission linked to groupID, granting the given nodes and assets.
func (f *Fixture) MakeGroupPermission(ctx context.Context, name string, groupID models.GroupID, nodeIDs []models.NodeID, assetIDs []models.AssetID) *models.Permission {
	p := models.NewPermission(Now(), models.ResourceName(name), "")
	mustNoError(f.Permissions.Create(ctx, nil, p))
	mustNoError(f.Links.AddGroup(ctx, nil, p.ID, groupID))
	for _, nodeID := range nodeIDs {
		mustNoError(f.Links.AddNode(ctx, nil, p.ID, nodeID))
	}
	for _, assetID := range assetIDs {
		mustNoError(f.Links.AddAsset(ctx, nil, p.ID, assetID))
	}
	return p
}

func mustNoError(err error) {
	if err != nil {
		panic(err)
	}
}
