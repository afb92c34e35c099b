package store

import "context"

// migrateTriggers (drop-then-recreate) installs the ownership and
// state-machine triggers named in spec §3: (a) no cross-tree edges,
// (b) a run's tree id matches its nodes' tree ids, (c) node_key stays
// consistent with its tree_node for non-dynamic nodes, (d) self-
// referential parent/join pointers are nulled before parent deletion,
// (e) a run node starts in pending, plus the run_nodes status state
// machine and the workflow_runs completed_at invariant.
//
// Every trigger here is DROP TRIGGER IF EXISTS then recreated, so this
// pass is idempotent even when a trigger body changes across releases
// (spec §4.1).
func migrateTriggers(ctx context.Context, tx execer) error {
	stmts := []string{
		`DROP TRIGGER IF EXISTS tree_edges_same_tree_ck`,
		`CREATE TRIGGER tree_edges_same_tree_ck
			BEFORE INSERT ON tree_edges
			WHEN (SELECT tree_id FROM tree_nodes WHERE id = NEW.source_id) <> NEW.tree_id
			     OR (SELECT tree_id FROM tree_nodes WHERE id = NEW.target_id) <> NEW.tree_id
			BEGIN
				SELECT RAISE(ABORT, 'tree_edges: source/target must belong to the edge''s tree');
			END`,

		`DROP TRIGGER IF EXISTS run_node_edges_same_run_ck`,
		`CREATE TRIGGER run_node_edges_same_run_ck
			BEFORE INSERT ON run_node_edges
			WHEN (SELECT run_id FROM run_nodes WHERE id = NEW.source_id) <> NEW.run_id
			     OR (SELECT run_id FROM run_nodes WHERE id = NEW.target_id) <> NEW.run_id
			BEGIN
				SELECT RAISE(ABORT, 'run_node_edges: source/target must belong to the edge''s run');
			END`,

		`DROP TRIGGER IF EXISTS run_nodes_tree_match_ck`,
		`CREATE TRIGGER run_nodes_tree_match_ck
			BEFORE INSERT ON run_nodes
			WHEN NEW.tree_node_id IS NOT NULL
			     AND (SELECT tree_id FROM tree_nodes WHERE id = NEW.tree_node_id)
			         <> (SELECT tree_id FROM workflow_runs WHERE id = NEW.run_id)
			BEGIN
				SELECT RAISE(ABORT, 'run_nodes: tree_node must belong to the run''s tree');
			END`,

		`DROP TRIGGER IF EXISTS run_nodes_node_key_match_ck`,
		`CREATE TRIGGER run_nodes_node_key_match_ck
			BEFORE INSERT ON run_nodes
			WHEN NEW.tree_node_id IS NOT NULL
			     AND NEW.node_key <> (SELECT node_key FROM tree_nodes WHERE id = NEW.tree_node_id)
			BEGIN
				SELECT RAISE(ABORT, 'run_nodes: node_key must match tree_node for non-dynamic nodes');
			END`,

		`DROP TRIGGER IF EXISTS run_nodes_starts_pending_ck`,
		`CREATE TRIGGER run_nodes_starts_pending_ck
			BEFORE INSERT ON run_nodes
			WHEN NEW.status <> 'pending'
			BEGIN
				SELECT RAISE(ABORT, 'run_nodes: a new row must start in pending');
			END`,

		`DROP TRIGGER IF EXISTS run_nodes_clear_parent_links_before_delete_ck`,
		`CREATE TRIGGER run_nodes_clear_parent_links_before_delete_ck
			BEFORE DELETE ON run_nodes
			BEGIN
				UPDATE run_nodes SET spawner_node_id = NULL WHERE spawner_node_id = OLD.id;
				UPDATE run_nodes SET join_node_id = NULL WHERE join_node_id = OLD.id;
			END`,

		`DROP TRIGGER IF EXISTS run_nodes_status_transition_ck`,
		`CREATE TRIGGER run_nodes_status_transition_ck
			BEFORE UPDATE OF status ON run_nodes
			WHEN NOT (
				(OLD.status = 'pending' AND NEW.status IN ('running','skipped','cancelled'))
				OR (OLD.status = 'running' AND NEW.status IN ('completed','failed','cancelled'))
				OR (OLD.status = 'completed' AND NEW.status = 'pending')
				OR (OLD.status = 'failed' AND NEW.status IN ('running','pending'))
				OR (OLD.status = 'skipped' AND NEW.status = 'pending')
				OR (OLD.status = NEW.status)
			)
			BEGIN
				SELECT RAISE(ABORT, 'run_nodes: illegal status transition');
			END`,

		`DROP TRIGGER IF EXISTS workflow_runs_completed_at_ck`,
		`CREATE TRIGGER workflow_runs_completed_at_ck
			BEFORE UPDATE OF status ON workflow_runs
			WHEN (NEW.status IN ('completed','failed','cancelled')) <> (NEW.completed_at IS NOT NULL)
			BEGIN
				SELECT RAISE(ABORT, 'workflow_runs: terminal status requires completed_at');
			END`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
