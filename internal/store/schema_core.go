package store

import "context"

// migrateCoreSchema creates the tables and indices of spec §3. All DDL
// is IF NOT EXISTS so re-running this pass on an already-migrated
// database is a no-op, matching the teacher's createTables idiom
// (graph/store/sqlite.go) generalized from a single state-blob table to
// the fixed relational schema of a tree/run/node/edge engine.
func migrateCoreSchema(ctx context.Context, tx execer) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflow_trees (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tree_key TEXT NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('draft','published')),
			name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE(tree_key, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trees_key_version ON workflow_trees(tree_key, version)`,
		`CREATE INDEX IF NOT EXISTS idx_trees_key_status ON workflow_trees(tree_key, status)`,

		`CREATE TABLE IF NOT EXISTS tree_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tree_id INTEGER NOT NULL REFERENCES workflow_trees(id) ON DELETE CASCADE,
			node_key TEXT NOT NULL,
			sequence_index INTEGER NOT NULL,
			node_type TEXT NOT NULL CHECK (node_type IN ('agent','human','tool')),
			node_role TEXT NOT NULL DEFAULT 'standard' CHECK (node_role IN ('standard','spawner','join')),
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			prompt_template_id TEXT NOT NULL DEFAULT '',
			execution_permissions TEXT NOT NULL DEFAULT '{}',
			error_handler_config TEXT NOT NULL DEFAULT '{}',
			max_retries INTEGER NOT NULL DEFAULT 0 CHECK (max_retries >= 0),
			max_children INTEGER NOT NULL DEFAULT 0 CHECK (max_children >= 0),
			CHECK (node_role = 'standard' OR node_type = 'agent'),
			UNIQUE(tree_id, node_key),
			UNIQUE(tree_id, sequence_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tree_nodes_tree ON tree_nodes(tree_id)`,

		`CREATE TABLE IF NOT EXISTS tree_edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tree_id INTEGER NOT NULL REFERENCES workflow_trees(id) ON DELETE CASCADE,
			source_id INTEGER NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
			target_id INTEGER NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
			route_on TEXT NOT NULL CHECK (route_on IN ('success','failure')),
			priority INTEGER NOT NULL DEFAULT 0 CHECK (priority >= 0),
			auto INTEGER NOT NULL CHECK (auto IN (0,1)),
			guard_field TEXT NOT NULL DEFAULT '',
			guard_op TEXT NOT NULL DEFAULT '',
			guard_value TEXT NOT NULL DEFAULT '',
			CHECK (route_on <> 'failure' OR auto = 1),
			CHECK (auto = 1 OR guard_field <> ''),
			UNIQUE(source_id, route_on, priority)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tree_edges_tree ON tree_edges(tree_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tree_edges_source ON tree_edges(source_id)`,

		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tree_id INTEGER NOT NULL REFERENCES workflow_trees(id) ON DELETE RESTRICT,
			status TEXT NOT NULL CHECK (status IN ('pending','running','paused','completed','failed','cancelled')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			started_at TEXT,
			completed_at TEXT,
			max_steps INTEGER NOT NULL DEFAULT 0,
			step_count INTEGER NOT NULL DEFAULT 0,
			CHECK ((status IN ('completed','failed','cancelled')) = (completed_at IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_tree ON workflow_runs(tree_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON workflow_runs(status)`,

		`CREATE TABLE IF NOT EXISTS run_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			tree_node_id INTEGER REFERENCES tree_nodes(id) ON DELETE SET NULL,
			node_key TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 1 CHECK (attempt >= 1),
			node_type TEXT NOT NULL CHECK (node_type IN ('agent','human','tool')),
			node_role TEXT NOT NULL DEFAULT 'standard' CHECK (node_role IN ('standard','spawner','join')),
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			execution_permissions TEXT NOT NULL DEFAULT '{}',
			max_retries INTEGER NOT NULL DEFAULT 0,
			max_children INTEGER NOT NULL DEFAULT 0,
			sequence_index INTEGER NOT NULL,
			sequence_path TEXT NOT NULL DEFAULT '',
			lineage_depth INTEGER NOT NULL DEFAULT 0,
			spawner_node_id INTEGER REFERENCES run_nodes(id) ON DELETE SET NULL,
			join_node_id INTEGER REFERENCES run_nodes(id) ON DELETE SET NULL,
			status TEXT NOT NULL CHECK (status IN ('pending','running','completed','failed','skipped','cancelled')),
			started_at TEXT,
			completed_at TEXT,
			CHECK (status <> 'pending' OR (started_at IS NULL AND completed_at IS NULL)),
			CHECK (status <> 'running' OR started_at IS NOT NULL),
			CHECK (status NOT IN ('completed','failed','skipped','cancelled') OR completed_at IS NOT NULL),
			UNIQUE(run_id, node_key, attempt),
			UNIQUE(run_id, sequence_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_nodes_run ON run_nodes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_nodes_run_key ON run_nodes(run_id, node_key)`,
		`CREATE INDEX IF NOT EXISTS idx_run_nodes_spawner ON run_nodes(spawner_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_nodes_join ON run_nodes(join_node_id)`,

		`CREATE TABLE IF NOT EXISTS run_node_edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			source_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			target_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			route_on TEXT NOT NULL CHECK (route_on IN ('success','failure')),
			priority INTEGER NOT NULL DEFAULT 0,
			auto INTEGER NOT NULL CHECK (auto IN (0,1)),
			guard_field TEXT NOT NULL DEFAULT '',
			guard_op TEXT NOT NULL DEFAULT '',
			guard_value TEXT NOT NULL DEFAULT '',
			edge_kind TEXT NOT NULL DEFAULT 'static' CHECK (edge_kind IN ('static','dynamic_spawner_to_child','dynamic_child_to_join'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_node_edges_run ON run_node_edges(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_node_edges_source ON run_node_edges(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_run_node_edges_target ON run_node_edges(target_id)`,

		`CREATE TABLE IF NOT EXISTS phase_artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			artifact_type TEXT NOT NULL CHECK (artifact_type IN ('report','note','log')),
			content_type TEXT NOT NULL CHECK (content_type IN ('text','markdown','json','diff')),
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run_node ON phase_artifacts(run_node_id, attempt)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON phase_artifacts(run_id)`,

		`CREATE TABLE IF NOT EXISTS routing_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			decision_type TEXT NOT NULL CHECK (decision_type IN ('approved','changes_requested','blocked','retry','no_route')),
			source TEXT NOT NULL DEFAULT 'provider_result_metadata',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_routing_run_node ON routing_decisions(run_node_id, attempt)`,

		`CREATE TABLE IF NOT EXISTS run_join_barriers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			spawner_run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			join_run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			expected_children INTEGER NOT NULL CHECK (expected_children >= 0),
			terminal_children INTEGER NOT NULL DEFAULT 0,
			completed_children INTEGER NOT NULL DEFAULT 0,
			failed_children INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('pending','ready','released','cancelled')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			CHECK (terminal_children <= expected_children),
			CHECK (completed_children + failed_children <= terminal_children)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_barriers_spawner ON run_join_barriers(spawner_run_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_barriers_join ON run_join_barriers(join_run_node_id)`,

		`CREATE TABLE IF NOT EXISTS run_node_stream_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			sequence INTEGER NOT NULL,
			event_type TEXT NOT NULL CHECK (event_type IN ('system','assistant','tool_use','tool_result','usage','result')),
			content_preview TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			delta_tokens INTEGER,
			cumulative_tokens INTEGER,
			redacted INTEGER NOT NULL DEFAULT 0,
			truncated INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE(run_node_id, attempt, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_events_node_attempt ON run_node_stream_events(run_node_id, attempt, sequence)`,

		`CREATE TABLE IF NOT EXISTS run_node_diagnostics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			run_node_id INTEGER NOT NULL REFERENCES run_nodes(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			redacted INTEGER NOT NULL DEFAULT 0,
			truncated INTEGER NOT NULL DEFAULT 0,
			payload_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			UNIQUE(run_id, run_node_id, attempt)
		)`,

		`CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
