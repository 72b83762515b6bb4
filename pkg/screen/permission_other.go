//go:build !darwin

package screen

// CanCapture 非 macOS 系统不需要额外权限
func CanCapture() bool {
	return true
}

// OpenCaptureSettings 非 macOS 系统无操作
func OpenCaptureSettings() {}

// PermissionHint 非 macOS 系统无提示
func PermissionHint() string {
	return ""
}
