package cv

import "github.com/zoeyai/shapeid/pkg/vision/ncc"

// Backend 匹配后端名称
type Backend string

const (
	// BackendNCC 纯 Go 实现（默认）
	BackendNCC Backend = "ncc"
	// BackendOpenCV gocv / OpenCV 实现
	BackendOpenCV Backend = "opencv"
)

// NewCorrelator 按后端名称创建匹配器
func NewCorrelator(backend Backend, method ncc.Method) (ncc.Correlator, error) {
	switch backend {
	case BackendNCC, "":
		return ncc.New(method), nil
	case BackendOpenCV:
		return NewMatcher(method), nil
	default:
		return nil, &UnknownBackendError{Backend: string(backend)}
	}
}

// UnknownBackendError 未知后端
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "未知匹配后端: " + e.Backend
}
