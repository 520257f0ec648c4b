package notify

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// ToastNotifier raises Windows toast notifications for attention bells.
// Windows-only: go-toast shells out to a PowerShell script under the
// hood, so IsSupported gates every other platform out.
type ToastNotifier struct {
	appID        string
	dashboardURL string
}

// NewToastNotifier constructs a ToastNotifier; an empty appID defaults
// to "Overcode".
func NewToastNotifier(appID, dashboardURL string) *ToastNotifier {
	if appID == "" {
		appID = "Overcode"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &ToastNotifier{appID: appID, dashboardURL: dashboardURL}
}

// Show raises a plain toast with the given title and message.
func (t *ToastNotifier) Show(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on windows")
	}

	n := toast.Notification{
		AppID:   t.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: t.dashboardURL},
		},
	}
	return n.Push()
}

// NotifyAttention raises a high-priority toast for the coalesced
// attention bell.
func (t *ToastNotifier) NotifyAttention(message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on windows")
	}

	n := toast.Notification{
		AppID:   t.appID,
		Title:   "Overcode needs your attention",
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "View Now", Arguments: t.dashboardURL},
		},
	}
	return n.Push()
}

// IsSupported reports whether toast notifications can be raised here.
func (t *ToastNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
