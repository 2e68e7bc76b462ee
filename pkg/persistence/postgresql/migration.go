package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Node documents: parameter values and execution state per node
			CREATE TABLE node_documents (
				node_id VARCHAR(255) PRIMARY KEY,
				params JSONB NOT NULL DEFAULT '{}',
				files JSONB NOT NULL DEFAULT '[]',
				cache BOOLEAN NOT NULL DEFAULT false,
				exec_time DOUBLE PRECISION NOT NULL DEFAULT 0,
				memory BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_node_documents_updated_at ON node_documents(updated_at);
		`,
		2: `
			-- Binary artifacts attached to a node
			CREATE TABLE node_files (
				node_id VARCHAR(255) NOT NULL,
				file_name VARCHAR(512) NOT NULL,
				data BYTEA NOT NULL,
				size BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (node_id, file_name)
			);

			CREATE INDEX idx_node_files_node_id ON node_files(node_id);
		`,
	}
}
