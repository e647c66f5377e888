package postgresql

import "github.com/dukex/stockflow/pkg/persistence/sqlbase"

var migrations = []sqlbase.Migration{
	{
		Version: 1,
		Name:    "create_workflow_chains",
		SQL: `
			CREATE TABLE workflow_chains (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'paused', 'archived')),
				workspace_id VARCHAR(255),
				created_by VARCHAR(255),
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_chains_status ON workflow_chains(status);
			CREATE INDEX idx_workflow_chains_workspace_id ON workflow_chains(workspace_id);
		`,
	},
	{
		Version: 2,
		Name:    "create_workflow_instances",
		SQL: `
			CREATE TABLE workflow_instances (
				id TEXT PRIMARY KEY,
				chain_id TEXT NOT NULL REFERENCES workflow_chains(id) ON DELETE CASCADE,
				entity_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_step VARCHAR(255),
				history JSONB NOT NULL DEFAULT '[]',
				metadata JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_instances_chain_id ON workflow_instances(chain_id);
			CREATE INDEX idx_workflow_instances_entity_id ON workflow_instances(entity_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
		`,
	},
}
