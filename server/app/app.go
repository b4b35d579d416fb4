// Package app wires together the stores and services that make up the per-user granted-tree
// materialization engine. There is no dependency-injection code generation here; NewServer is a
// straight constructor chain, grouped in the order each component's dependencies become available.
package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/server/services/invalidation"
	"github.com/jumpserver/mappingtree/server/services/lock"
	"github.com/jumpserver/mappingtree/server/services/query"
	"github.com/jumpserver/mappingtree/server/services/rebuilder"
	"github.com/jumpserver/mappingtree/server/services/taskrunner"
	"github.com/jumpserver/mappingtree/server/store"
	"github.com/jumpserver/mappingtree/server/store/assets"
	"github.com/jumpserver/mappingtree/server/store/grants"
	"github.com/jumpserver/mappingtree/server/store/group_memberships"
	"github.com/jumpserver/mappingtree/server/store/groups"
	"github.com/jumpserver/mappingtree/server/store/mapping_tree"
	"github.com/jumpserver/mappingtree/server/store/migrations"
	"github.com/jumpserver/mappingtree/server/store/nodes"
	"github.com/jumpserver/mappingtree/server/store/permissions"
	"github.com/jumpserver/mappingtree/server/store/rebuild_tasks"
	"github.com/jumpserver/mappingtree/server/store/users"
)

// Server is the fully wired engine: every store and service plus the ones an embedding write
// layer needs direct access to (LinkStore, AssetNodeStore, GroupMembershipStore) to pair a mutation
// with the matching invalidation.Bus call inside one transaction.
type Server struct {
	DB *store.DB

	Users            *users.UserStore
	Groups           *groups.GroupStore
	GroupMemberships *group_memberships.GroupMembershipStore
	Nodes            *nodes.NodeStore
	Assets           *assets.AssetStore
	AssetNodes       *assets.AssetNodeStore
	Permissions      *permissions.PermissionStore
	PermissionLinks  *permissions.LinkStore
	Grants           *grants.GrantStore
	MappingTree      *mapping_tree.MappingTreeStore
	RebuildTasks     *rebuild_tasks.RebuildTaskStore

	Locker         lock.Locker
	Rebuilder      *rebuilder.Rebuilder
	InvalidationBus *invalidation.Bus
	TaskRunner     *taskrunner.TaskRunner
	Query          *query.Engine
}

// NewServer opens the database, runs migrations, and constructs every store and service.
func NewServer(ctx context.Context, config *ServerConfig, logFactory logger.LogFactory) (*Server, func(), error) {
	db, dbCleanup, err := store.NewDatabase(ctx, config.DatabaseConfig, migrations.NewServerMigrateRunner(logFactory))
	if err != nil {
		return nil, nil, err
	}

	userStore := users.NewUserStore(db, logFactory)
	groupStore := groups.NewGroupStore(db, logFactory)
	groupMembershipStore := group_memberships.NewGroupMembershipStore(db, logFactory)
	nodeStore := nodes.NewNodeStore(db, logFactory)
	assetStore := assets.NewAssetStore(db, logFactory)
	assetNodeStore := assets.NewAssetNodeStore(db)
	permissionStore := permissions.NewPermissionStore(db, logFactory)
	permissionLinkStore := permissions.NewLinkStore(db)
	grantStore := grants.NewGrantStore(db, logFactory)
	mappingTreeStore := mapping_tree.NewMappingTreeStore(db, logFactory)
	rebuildTaskStore := rebuild_tasks.NewRebuildTaskStore(db, logFactory)

	locker, lockCleanup := newLocker(config)

	rebuilderService := rebuilder.NewRebuilder(grantStore, nodeStore, logFactory)
	taskRunnerService := taskrunner.NewTaskRunner(db, rebuildTaskStore, mappingTreeStore, rebuilderService, locker, logFactory)
	invalidationBus := invalidation.NewBus(db, grantStore, rebuildTaskStore, taskRunnerService, logFactory)
	queryEngine := query.NewEngine(mappingTreeStore, grantStore, nodeStore, rebuildTaskStore, locker, taskRunnerService, logFactory)

	cleanup := func() {
		lockCleanup()
		dbCleanup()
	}

	return &Server{
		DB:               db,
		Users:            userStore,
		Groups:           groupStore,
		GroupMemberships: groupMembershipStore,
		Nodes:            nodeStore,
		Assets:           assetStore,
		AssetNodes:       assetNodeStore,
		Permissions:      permissionStore,
		PermissionLinks:  permissionLinkStore,
		Grants:           grantStore,
		MappingTree:      mappingTreeStore,
		RebuildTasks:     rebuildTaskStore,
		Locker:           locker,
		Rebuilder:        rebuilderService,
		InvalidationBus:  invalidationBus,
		TaskRunner:       taskRunnerService,
		Query:            queryEngine,
	}, cleanup, nil
}

// newLocker picks RedisLock for a multi-process deployment or MemoryLock for a single-node one,
// per config.UseMemoryLock (set in ConfigFromFlags when no Redis address was supplied).
func newLocker(config *ServerConfig) (lock.Locker, func()) {
	if config.UseMemoryLock {
		return lock.NewMemoryLock(clock.New()), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisConfig.Address,
		Password: config.RedisConfig.Password,
		DB:       config.RedisConfig.DB,
	})
	return lock.NewRedisLock(client), func() { _ = client.Close() }
}

// Start launches the background task runner worker pool.
func (s *Server) Start() {
	s.TaskRunner.Start()
}

// Shutdown stops the task runner, waiting for any in-flight rebuild to finish.
func (s *Server) Shutdown() {
	s.TaskRunner.Shutdown()
}
