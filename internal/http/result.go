package httpapi

// Result 查询响应信封
//   - status: "success"
//   - result: 查询结果（列表为空时输出 []）
type Result[T any] struct {
	Status string `json:"status"`
	Result T      `json:"result"`
}

// Status 无结果体的响应
//   - status: "success" | "error"
//   - message: 成功时的说明
//   - detail: 失败原因
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Status: StatusSuccess, Result: result}
}

// List 列表结果，nil 切片按空列表输出
func List[T any](items []T) Result[[]T] {
	if items == nil {
		items = []T{}
	}
	return Ok(items)
}

func Message(message string) Status {
	return Status{Status: StatusSuccess, Message: message}
}

func Fail(detail string) Status {
	return Status{Status: StatusError, Detail: detail}
}
