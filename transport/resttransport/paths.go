package resttransport

// REST 路径
const (
	PathEvaluate          = "/v1/evaluate"
	PathEvaluateBatch     = "/v1/evaluate/batch"
	PathWrite             = "/v1/relationships/write"
	PathWriteBatch        = "/v1/relationships/write/batch"
	PathDelete            = "/v1/relationships/delete"
	PathListRelationships = "/v1/relationships/list"
	PathListResources     = "/v1/resources/list"
	PathListSubjects      = "/v1/subjects/list"
	PathSimulate          = "/v1/simulate"
	PathHealth            = "/healthz"
)
