//go:build darwin

package screen

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics
#import <Cocoa/Cocoa.h>
#import <CoreGraphics/CoreGraphics.h>

int screenCaptureAllowed() {
    if (@available(macOS 10.15, *)) {
        CFArrayRef windowList = CGWindowListCopyWindowInfo(
            kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
            kCGNullWindowID
        );
        if (windowList == NULL) {
            return 0;
        }

        CFIndex count = CFArrayGetCount(windowList);
        int named = 0;
        for (CFIndex i = 0; i < count; i++) {
            CFDictionaryRef window = (CFDictionaryRef)CFArrayGetValueAtIndex(windowList, i);
            CFStringRef name = (CFStringRef)CFDictionaryGetValue(window, kCGWindowName);
            if (name != NULL && CFStringGetLength(name) > 0) {
                named = 1;
                break;
            }
        }
        CFRelease(windowList);
        return (count == 0 || named) ? 1 : 0;
    }
    return 1;
}

void openScreenCaptureSettings() {
    NSString *u = @"x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture";
    [[NSWorkspace sharedWorkspace] openURL:[NSURL URLWithString:u]];
}
*/
import "C"

// CanCapture 是否已获得屏幕录制权限
// 未授权时截图只包含桌面背景，识别结果没有意义
func CanCapture() bool {
	return C.screenCaptureAllowed() == 1
}

// OpenCaptureSettings 打开屏幕录制权限设置
func OpenCaptureSettings() {
	C.openScreenCaptureSettings()
}

// PermissionHint 缺少权限时的提示
func PermissionHint() string {
	return "需要屏幕录制权限: 系统设置 > 隐私与安全性 > 屏幕录制，授权后重启程序"
}
