package migrations

// DialectTemplate is used as the templating control for differing SQL syntax between our supported databases
type DialectTemplate struct {
	Binary            string
	IntegerPrimaryKey string
}

// MigrationSet provides a set of migrations that can be applied to a database.
type MigrationSet []MigrationData

// MigrationData provides the data for a single migration, including Up and Down SQL.
// Templated values are supported and will be substituted for database-specific values
// before the migrations are applied.
type MigrationData struct {
	SequenceNumber int64
	Name           string
	UpSQL          string
	DownSQL        string
}

// MappingTreeServerMigrations is the set of migrations to set up the database backing the
// per-user granted-tree materialization engine.
var MappingTreeServerMigrations = MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_users",
		UpSQL: `CREATE TABLE IF NOT EXISTS user
				(
					user_id text NOT NULL PRIMARY KEY,
					user_created_at timestamp without time zone NOT NULL,
					user_username text NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS user_username_unique_index ON user(user_username);`,
		DownSQL: `DROP INDEX user_username_unique_index;
				  DROP TABLE user;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_access_control_groups",
		UpSQL: `CREATE TABLE IF NOT EXISTS access_control_group
				(
					access_control_group_id text NOT NULL PRIMARY KEY,
					access_control_group_created_at timestamp without time zone NOT NULL,
					access_control_group_updated_at timestamp without time zone NOT NULL,
					access_control_group_deleted_at timestamp without time zone,
					access_control_group_etag text NOT NULL,
					access_control_group_name text NOT NULL,
					access_control_group_description text NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS access_control_group_name_unique_index ON access_control_group(access_control_group_name)
				WHERE access_control_group_deleted_at IS NULL;`,
		DownSQL: `DROP INDEX access_control_group_name_unique_index;
				  DROP TABLE access_control_group;`,
	},
	{
		SequenceNumber: 3,
		Name:           "create_access_control_group_memberships",
		UpSQL: `CREATE TABLE IF NOT EXISTS access_control_group_membership
				(
					access_control_group_membership_id text NOT NULL PRIMARY KEY,
					access_control_group_membership_created_at timestamp without time zone NOT NULL,
					access_control_group_membership_group_id text NOT NULL REFERENCES access_control_group (access_control_group_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					access_control_group_membership_member_user_id text NOT NULL REFERENCES user (user_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					access_control_group_membership_source_system text NOT NULL
				);
				CREATE UNIQUE INDEX IF NOT EXISTS access_control_group_membership_unique_index
					ON access_control_group_membership(access_control_group_membership_group_id, access_control_group_membership_member_user_id);
				CREATE INDEX IF NOT EXISTS access_control_group_membership_user_index
					ON access_control_group_membership(access_control_group_membership_member_user_id);`,
		DownSQL: `DROP INDEX access_control_group_membership_unique_index;
				  DROP INDEX access_control_group_membership_user_index;
				  DROP TABLE access_control_group_membership;`,
	},
	{
		SequenceNumber: 4,
		Name:           "create_nodes",
		UpSQL: `CREATE TABLE IF NOT EXISTS node
				(
					node_id text NOT NULL PRIMARY KEY,
					node_created_at timestamp without time zone NOT NULL,
					node_updated_at timestamp without time zone NOT NULL,
					node_key text NOT NULL,
					node_parent_key text NOT NULL,
					node_value text NOT NULL,
					node_assets_amount integer NOT NULL DEFAULT 0
				);
				CREATE UNIQUE INDEX IF NOT EXISTS node_key_unique_index ON node(node_key);
				CREATE INDEX IF NOT EXISTS node_parent_key_index ON node(node_parent_key);`,
		DownSQL: `DROP INDEX node_key_unique_index;
				  DROP INDEX node_parent_key_index;
				  DROP TABLE node;`,
	},
	{
		SequenceNumber: 5,
		Name:           "create_assets",
		UpSQL: `CREATE TABLE IF NOT EXISTS asset
				(
					asset_id text NOT NULL PRIMARY KEY,
					asset_created_at timestamp without time zone NOT NULL,
					asset_updated_at timestamp without time zone NOT NULL,
					asset_name text NOT NULL,
					asset_platform text NOT NULL,
					asset_protocol text NOT NULL,
					asset_organization_id text NOT NULL
				);
				CREATE INDEX IF NOT EXISTS asset_organization_id_index ON asset(asset_organization_id);`,
		DownSQL: `DROP INDEX asset_organization_id_index;
				  DROP TABLE asset;`,
	},
	{
		SequenceNumber: 6,
		Name:           "create_asset_nodes",
		UpSQL: `CREATE TABLE IF NOT EXISTS asset_node
				(
					asset_node_id text NOT NULL PRIMARY KEY,
					asset_node_created_at timestamp without time zone NOT NULL,
					asset_node_asset_id text NOT NULL REFERENCES asset (asset_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					asset_node_node_id text NOT NULL REFERENCES node (node_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				CREATE UNIQUE INDEX IF NOT EXISTS asset_node_unique_index ON asset_node(asset_node_asset_id, asset_node_node_id);
				CREATE INDEX IF NOT EXISTS asset_node_node_index ON asset_node(asset_node_node_id);`,
		DownSQL: `DROP INDEX asset_node_unique_index;
				  DROP INDEX asset_node_node_index;
				  DROP TABLE asset_node;`,
	},
	{
		SequenceNumber: 7,
		Name:           "create_permissions",
		UpSQL: `CREATE TABLE IF NOT EXISTS permission
				(
					permission_id text NOT NULL PRIMARY KEY,
					permission_created_at timestamp without time zone NOT NULL,
					permission_updated_at timestamp without time zone NOT NULL,
					permission_name text NOT NULL,
					permission_description text NOT NULL
				);`,
		DownSQL: `DROP TABLE permission;`,
	},
	{
		SequenceNumber: 8,
		Name:           "create_permission_links",
		UpSQL: `CREATE TABLE IF NOT EXISTS permission_user
				(
					permission_user_id text NOT NULL PRIMARY KEY,
					permission_user_created_at timestamp without time zone NOT NULL,
					permission_user_permission_id text NOT NULL REFERENCES permission (permission_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					permission_user_user_id text NOT NULL REFERENCES user (user_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				CREATE UNIQUE INDEX IF NOT EXISTS permission_user_unique_index ON permission_user(permission_user_permission_id, permission_user_user_id);
				CREATE INDEX IF NOT EXISTS permission_user_user_index ON permission_user(permission_user_user_id);

				CREATE TABLE IF NOT EXISTS permission_group
				(
					permission_group_id text NOT NULL PRIMARY KEY,
					permission_group_created_at timestamp without time zone NOT NULL,
					permission_group_permission_id text NOT NULL REFERENCES permission (permission_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					permission_group_group_id text NOT NULL REFERENCES access_control_group (access_control_group_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				CREATE UNIQUE INDEX IF NOT EXISTS permission_group_unique_index ON permission_group(permission_group_permission_id, permission_group_group_id);
				CREATE INDEX IF NOT EXISTS permission_group_group_index ON permission_group(permission_group_group_id);

				CREATE TABLE IF NOT EXISTS permission_node
				(
					permission_node_id text NOT NULL PRIMARY KEY,
					permission_node_created_at timestamp without time zone NOT NULL,
					permission_node_permission_id text NOT NULL REFERENCES permission (permission_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					permission_node_node_id text NOT NULL REFERENCES node (node_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				CREATE UNIQUE INDEX IF NOT EXISTS permission_node_unique_index ON permission_node(permission_node_permission_id, permission_node_node_id);
				CREATE INDEX IF NOT EXISTS permission_node_node_index ON permission_node(permission_node_node_id);

				CREATE TABLE IF NOT EXISTS permission_asset
				(
					permission_asset_id text NOT NULL PRIMARY KEY,
					permission_asset_created_at timestamp without time zone NOT NULL,
					permission_asset_permission_id text NOT NULL REFERENCES permission (permission_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					permission_asset_asset_id text NOT NULL REFERENCES asset (asset_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				CREATE UNIQUE INDEX IF NOT EXISTS permission_asset_unique_index ON permission_asset(permission_asset_permission_id, permission_asset_asset_id);
				CREATE INDEX IF NOT EXISTS permission_asset_asset_index ON permission_asset(permission_asset_asset_id);`,
		DownSQL: `DROP TABLE permission_user;
				  DROP TABLE permission_group;
				  DROP TABLE permission_node;
				  DROP TABLE permission_asset;`,
	},
	{
		SequenceNumber: 9,
		Name:           "create_mapping_nodes",
		UpSQL: `CREATE TABLE IF NOT EXISTS mapping_node
				(
					mapping_node_id text NOT NULL PRIMARY KEY,
					mapping_node_created_at timestamp without time zone NOT NULL,
					mapping_node_updated_at timestamp without time zone NOT NULL,
					mapping_node_user_id text NOT NULL REFERENCES user (user_id) ON UPDATE NO ACTION ON DELETE CASCADE,
					mapping_node_key text NOT NULL,
					mapping_node_parent_key text NOT NULL,
					mapping_node_node_id text NOT NULL,
					mapping_node_value text NOT NULL,
					mapping_node_granted boolean NOT NULL DEFAULT false,
					mapping_node_asset_granted boolean NOT NULL DEFAULT false,
					mapping_node_assets_amount integer NOT NULL DEFAULT 0
				);
				-- (user, key) uniquely identifies a row, and backs ReadByKey / the Q1 lookup.
				CREATE UNIQUE INDEX IF NOT EXISTS mapping_node_user_key_unique_index ON mapping_node(mapping_node_user_id, mapping_node_key);
				-- (user, parent_key) backs Q2, the visible-children listing.
				CREATE INDEX IF NOT EXISTS mapping_node_user_parent_key_index ON mapping_node(mapping_node_user_id, mapping_node_parent_key);
				-- (user, granted) backs the granted-descendants scan in Q1 case (b).
				CREATE INDEX IF NOT EXISTS mapping_node_user_granted_index ON mapping_node(mapping_node_user_id, mapping_node_granted);`,
		DownSQL: `DROP INDEX mapping_node_user_key_unique_index;
				  DROP INDEX mapping_node_user_parent_key_index;
				  DROP INDEX mapping_node_user_granted_index;
				  DROP TABLE mapping_node;`,
	},
	{
		SequenceNumber: 10,
		Name:           "create_rebuild_user_tree_tasks",
		UpSQL: `CREATE TABLE IF NOT EXISTS rebuild_user_tree_task
				(
					rebuild_user_tree_task_id text NOT NULL PRIMARY KEY,
					rebuild_user_tree_task_created_at timestamp without time zone NOT NULL,
					rebuild_user_tree_task_user_id text NOT NULL REFERENCES user (user_id) ON UPDATE NO ACTION ON DELETE CASCADE
				);
				-- the task id is derived deterministically from the user id, so this unique index is what makes
				-- Enqueue's insert-or-noop coalescing behavior correct rather than merely convenient.
				CREATE UNIQUE INDEX IF NOT EXISTS rebuild_user_tree_task_user_unique_index ON rebuild_user_tree_task(rebuild_user_tree_task_user_id);
				CREATE INDEX IF NOT EXISTS rebuild_user_tree_task_created_at_index ON rebuild_user_tree_task(rebuild_user_tree_task_created_at);`,
		DownSQL: `DROP INDEX rebuild_user_tree_task_user_unique_index;
				  DROP INDEX rebuild_user_tree_task_created_at_index;
				  DROP TABLE rebuild_user_tree_task;`,
	},
	{
		// Backfills node.assets_amount for rows written before the column existed, from a COUNT
		// over asset_node. node.parent_key is populated at write time by every later writer (see
		// models.Node.Validate's ParentKey == Key.Parent() invariant) so no backfill is needed for it
		// once this migration's callers have moved to the current write path.
		SequenceNumber: 11,
		Name:           "backfill_node_assets_amount",
		UpSQL: `UPDATE node SET node_assets_amount = (
					SELECT COUNT(DISTINCT an.asset_node_asset_id) FROM asset_node an
					JOIN node sub ON sub.node_id = an.asset_node_node_id
					WHERE sub.node_key = node.node_key OR sub.node_key LIKE node.node_key || ':%'
				) WHERE node_assets_amount = 0;`,
		DownSQL: `-- assets_amount is derived data; reversing this backfill is a no-op.`,
	},
}
