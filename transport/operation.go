package transport

// Operation 逻辑操作名，用于中间件信封、日志和指标
type Operation string

const (
	OpCheck             Operation = "check"
	OpCheckBatch        Operation = "check_batch"
	OpWrite             Operation = "write"
	OpWriteBatch        Operation = "write_batch"
	OpDelete            Operation = "delete"
	OpListRelationships Operation = "list_relationships"
	OpListResources     Operation = "list_resources"
	OpListSubjects      Operation = "list_subjects"
	OpSimulate          Operation = "simulate"
	OpHealth            Operation = "health"
)

// Operations 返回全部操作
func Operations() []Operation {
	return []Operation{
		OpCheck, OpCheckBatch, OpWrite, OpWriteBatch, OpDelete,
		OpListRelationships, OpListResources, OpListSubjects, OpSimulate, OpHealth,
	}
}

// IsWrite 报告操作是否修改关系数据
func (o Operation) IsWrite() bool {
	switch o {
	case OpWrite, OpWriteBatch, OpDelete:
		return true
	default:
		return false
	}
}

func (o Operation) String() string {
	return string(o)
}

// Valid 报告是否为已知操作
func (o Operation) Valid() bool {
	switch o {
	case OpCheck, OpCheckBatch, OpWrite, OpWriteBatch, OpDelete,
		OpListRelationships, OpListResources, OpListSubjects, OpSimulate, OpHealth:
		return true
	default:
		return false
	}
}
