package domain

// Entity type names used as the middle element of tenant store keys
// (tenant_id:entity_type:entity_id). No other key shapes are permitted.
const (
	EntitySession   = "session"
	EntityScore     = "score"
	EntityScoreLock = "score_lock"
	EntityIndex     = "index"
)

// IndexEntityType namespaces retrieval documents by their document type,
// yielding keys like tenant:index:rubric:{doc_id}.
func IndexEntityType(docType DocumentType) string {
	return EntityIndex + ":" + string(docType)
}
