package main

import (
	"fmt"
	"strconv"

	evdev "github.com/holoplot/go-evdev"
)

// KeyCode identifies a physical key or button in the kernel's
// input-event code space.
type KeyCode uint16

// keyCodeCount is KEY_CNT from input-event-codes.h: the size of the
// key/button code space, and therefore of the EVIOCGBIT(EV_KEY) mask.
const keyCodeCount = 0x300

// KeyCodeNames maps well-known key codes to their kernel names. This is
// the closed set accepted by ParseKeyCode; anything else must be given
// numerically.
var KeyCodeNames = map[KeyCode]string{
	KeyCode(evdev.KEY_ESC): "KEY_ESC", KeyCode(evdev.KEY_ENTER): "KEY_ENTER",
	KeyCode(evdev.KEY_SPACE): "KEY_SPACE", KeyCode(evdev.KEY_TAB): "KEY_TAB",
	KeyCode(evdev.KEY_BACKSPACE): "KEY_BACKSPACE", KeyCode(evdev.KEY_DELETE): "KEY_DELETE",

	KeyCode(evdev.KEY_A): "KEY_A", KeyCode(evdev.KEY_B): "KEY_B",
	KeyCode(evdev.KEY_C): "KEY_C", KeyCode(evdev.KEY_D): "KEY_D",
	KeyCode(evdev.KEY_E): "KEY_E", KeyCode(evdev.KEY_F): "KEY_F",
	KeyCode(evdev.KEY_G): "KEY_G", KeyCode(evdev.KEY_H): "KEY_H",
	KeyCode(evdev.KEY_I): "KEY_I", KeyCode(evdev.KEY_J): "KEY_J",
	KeyCode(evdev.KEY_K): "KEY_K", KeyCode(evdev.KEY_L): "KEY_L",
	KeyCode(evdev.KEY_M): "KEY_M", KeyCode(evdev.KEY_N): "KEY_N",
	KeyCode(evdev.KEY_O): "KEY_O", KeyCode(evdev.KEY_P): "KEY_P",
	KeyCode(evdev.KEY_Q): "KEY_Q", KeyCode(evdev.KEY_R): "KEY_R",
	KeyCode(evdev.KEY_S): "KEY_S", KeyCode(evdev.KEY_T): "KEY_T",
	KeyCode(evdev.KEY_U): "KEY_U", KeyCode(evdev.KEY_V): "KEY_V",
	KeyCode(evdev.KEY_W): "KEY_W", KeyCode(evdev.KEY_X): "KEY_X",
	KeyCode(evdev.KEY_Y): "KEY_Y", KeyCode(evdev.KEY_Z): "KEY_Z",

	KeyCode(evdev.KEY_1): "KEY_1", KeyCode(evdev.KEY_2): "KEY_2",
	KeyCode(evdev.KEY_3): "KEY_3", KeyCode(evdev.KEY_4): "KEY_4",
	KeyCode(evdev.KEY_5): "KEY_5", KeyCode(evdev.KEY_6): "KEY_6",
	KeyCode(evdev.KEY_7): "KEY_7", KeyCode(evdev.KEY_8): "KEY_8",
	KeyCode(evdev.KEY_9): "KEY_9", KeyCode(evdev.KEY_0): "KEY_0",

	KeyCode(evdev.KEY_UP): "KEY_UP", KeyCode(evdev.KEY_DOWN): "KEY_DOWN",
	KeyCode(evdev.KEY_LEFT): "KEY_LEFT", KeyCode(evdev.KEY_RIGHT): "KEY_RIGHT",
	KeyCode(evdev.KEY_HOME): "KEY_HOME", KeyCode(evdev.KEY_END): "KEY_END",
	KeyCode(evdev.KEY_PAGEUP): "KEY_PAGEUP", KeyCode(evdev.KEY_PAGEDOWN): "KEY_PAGEDOWN",

	KeyCode(evdev.KEY_F1): "KEY_F1", KeyCode(evdev.KEY_F2): "KEY_F2",
	KeyCode(evdev.KEY_F3): "KEY_F3", KeyCode(evdev.KEY_F4): "KEY_F4",
	KeyCode(evdev.KEY_F5): "KEY_F5", KeyCode(evdev.KEY_F6): "KEY_F6",
	KeyCode(evdev.KEY_F7): "KEY_F7", KeyCode(evdev.KEY_F8): "KEY_F8",
	KeyCode(evdev.KEY_F9): "KEY_F9", KeyCode(evdev.KEY_F10): "KEY_F10",
	KeyCode(evdev.KEY_F11): "KEY_F11", KeyCode(evdev.KEY_F12): "KEY_F12",

	// Buttons common on e-readers, tablets and remotes.
	KeyCode(evdev.KEY_MENU): "KEY_MENU", KeyCode(evdev.KEY_BACK): "KEY_BACK",
	KeyCode(evdev.KEY_POWER): "KEY_POWER", KeyCode(evdev.KEY_SLEEP): "KEY_SLEEP",
	KeyCode(evdev.KEY_WAKEUP): "KEY_WAKEUP", KeyCode(evdev.KEY_REFRESH): "KEY_REFRESH",
	KeyCode(evdev.KEY_OK): "KEY_OK", KeyCode(evdev.KEY_SELECT): "KEY_SELECT",
	KeyCode(evdev.KEY_VOLUMEUP): "KEY_VOLUMEUP", KeyCode(evdev.KEY_VOLUMEDOWN): "KEY_VOLUMEDOWN",
	KeyCode(evdev.KEY_MUTE): "KEY_MUTE", KeyCode(evdev.KEY_NEXTSONG): "KEY_NEXTSONG",
	KeyCode(evdev.KEY_PREVIOUSSONG): "KEY_PREVIOUSSONG", KeyCode(evdev.KEY_PLAYPAUSE): "KEY_PLAYPAUSE",

	KeyCode(evdev.BTN_LEFT): "BTN_LEFT", KeyCode(evdev.BTN_RIGHT): "BTN_RIGHT",
	KeyCode(evdev.BTN_MIDDLE): "BTN_MIDDLE", KeyCode(evdev.BTN_TOUCH): "BTN_TOUCH",
	KeyCode(evdev.BTN_0): "BTN_0", KeyCode(evdev.BTN_1): "BTN_1",
}

var keyCodeValues = make(map[string]KeyCode, len(KeyCodeNames))

func init() {
	for code, name := range KeyCodeNames {
		keyCodeValues[name] = code
	}
}

// ParseKeyCode resolves a kernel key name ("KEY_HOME") or a raw numeric
// code ("102") to a KeyCode.
func ParseKeyCode(s string) (KeyCode, error) {
	if code, ok := keyCodeValues[s]; ok {
		return code, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown key code name or invalid numeric code: %q", s)
	}
	return KeyCode(n), nil
}

func (k KeyCode) String() string {
	if name, ok := KeyCodeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KEY_UNKNOWN(%d)", uint16(k))
}
