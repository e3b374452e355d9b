package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// This is the length of the full string: "area:action:payload".
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats inline callback data as "area:action:payload".
// Payload is kept as-is (no escaping); callers pass opaque ids only.
func Data(area, action, payload string) string {
	area = strings.TrimSpace(area)
	action = strings.TrimSpace(action)
	if payload == "" {
		return area + ":" + action
	}
	return area + ":" + action + ":" + payload
}

// Parse splits callback data produced by Data. A missing payload comes
// back as "".
func Parse(data string) (area, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	default:
		return data, "", ""
	}
}

// CheckData validates callback data length against Telegram's limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}
