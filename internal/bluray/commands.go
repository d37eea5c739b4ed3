package bluray

import (
	"sort"
	"strings"
)

// BDCommands are the remote buttons understood by BD players (2011-2012 models)
var BDCommands = []string{
	// Power
	"POWER", "POWERON", "POWEROFF",
	// Tray
	"OP_CL",
	// Playback
	"PLAYBACK", "PAUSE", "STOP", "CUE", "REV", "SKIPFWD", "SKIPREV",
	// Shuttle
	"SHFWD1", "SHFWD2", "SHFWD3", "SHFWD4", "SHFWD5",
	"SHREV1", "SHREV2", "SHREV3", "SHREV4", "SHREV5",
	// Jog
	"JLEFT", "JRIGHT",
	// Navigation
	"UP", "DOWN", "LEFT", "RIGHT", "SELECT", "RETURN", "EXIT",
	// Menu
	"MLTNAVI", "DSPSEL", "TITLE", "MENU", "PUPMENU", "SETUP",
	// Numbers
	"D0", "D1", "D2", "D3", "D4", "D5", "D6", "D7", "D8", "D9", "D12", "SHARP", "CLEAR",
	// Color buttons
	"RED", "GREEN", "BLUE", "YELLOW",
	// Apps/Network
	"NETFLIX", "SKYPE", "V_CAST", "NETWORK",
	// Audio/Video
	"AUDIOSEL", "3D", "OSDONOFF", "P_IN_P", "PIP",
	// Advanced
	"PICTMD", "2NDARY", "CHROMA", "KEYS", "DETAIL", "RESOLUTN",
}

// UHDCommands are the extra buttons added by UHD players (2018+ models)
var UHDCommands = []string{
	"MNSKIP", "MNBACK",
	"TITLEONOFF", "CLOSED_CAPTION",
	"HDR_PICTUREMODE", "PICTURESETTINGS",
	"SOUNDEFFECT", "HIGHCLARITY",
	"PLAYBACKINFO", "MIRACAST", "SKIP_THE_TRAILER",
}

var commandDescriptions = map[string]string{
	"POWER":    "Toggle power (on/standby)",
	"POWERON":  "Power on only",
	"POWEROFF": "Power off (standby) only",
	"OP_CL":    "Open/Close disc tray",

	"PLAYBACK": "Play",
	"PAUSE":    "Pause",
	"STOP":     "Stop",
	"CUE":      "Fast forward",
	"REV":      "Rewind",
	"SKIPFWD":  "Skip forward (next chapter)",
	"SKIPREV":  "Skip back (previous chapter)",
	"MNSKIP":   "Manual skip +60 seconds",
	"MNBACK":   "Manual skip -10 seconds",

	"SHFWD1": "Shuttle forward speed 1",
	"SHFWD2": "Shuttle forward speed 2",
	"SHFWD3": "Shuttle forward speed 3",
	"SHFWD4": "Shuttle forward speed 4",
	"SHFWD5": "Shuttle forward speed 5",
	"SHREV1": "Shuttle reverse speed 1",
	"SHREV2": "Shuttle reverse speed 2",
	"SHREV3": "Shuttle reverse speed 3",
	"SHREV4": "Shuttle reverse speed 4",
	"SHREV5": "Shuttle reverse speed 5",
	"JLEFT":  "Jog left (frame back)",
	"JRIGHT": "Jog right (frame forward)",

	"UP":     "Navigate up",
	"DOWN":   "Navigate down",
	"LEFT":   "Navigate left",
	"RIGHT":  "Navigate right",
	"SELECT": "OK / Select",
	"RETURN": "Return / Back",
	"EXIT":   "Exit menu",

	"MLTNAVI": "Home menu",
	"DSPSEL":  "Display / Status",
	"TITLE":   "Top menu / Title menu",
	"MENU":    "Disc menu",
	"PUPMENU": "Pop-up menu",
	"SETUP":   "Setup menu",

	"D0":    "Number 0",
	"D1":    "Number 1",
	"D2":    "Number 2",
	"D3":    "Number 3",
	"D4":    "Number 4",
	"D5":    "Number 5",
	"D6":    "Number 6",
	"D7":    "Number 7",
	"D8":    "Number 8",
	"D9":    "Number 9",
	"D12":   "Number 12",
	"SHARP": "# key",
	"CLEAR": "* / Cancel",

	"RED":    "Red button",
	"GREEN":  "Green button",
	"BLUE":   "Blue button",
	"YELLOW": "Yellow button",

	"NETFLIX":  "Netflix",
	"SKYPE":    "Skype",
	"V_CAST":   "VIERA Cast",
	"NETWORK":  "Network menu",
	"MIRACAST": "Screen mirroring",

	"AUDIOSEL":         "Audio selection",
	"3D":               "3D mode toggle",
	"OSDONOFF":         "On-screen display toggle",
	"P_IN_P":           "Picture-in-picture",
	"PIP":              "Picture-in-picture (alternate)",
	"TITLEONOFF":       "Subtitle toggle",
	"CLOSED_CAPTION":   "Closed captions",
	"HDR_PICTUREMODE":  "HDR picture mode",
	"PICTURESETTINGS":  "Picture settings",
	"SOUNDEFFECT":      "Sound effects",
	"HIGHCLARITY":      "High clarity sound",
	"PLAYBACKINFO":     "Playback information",
	"SKIP_THE_TRAILER": "Skip trailer",

	"PICTMD":   "Picture mode",
	"2NDARY":   "Secondary audio/video",
	"CHROMA":   "Chroma settings",
	"KEYS":     "Key lock",
	"DETAIL":   "Detail settings",
	"RESOLUTN": "Resolution settings",
}

var commandSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(BDCommands)+len(UHDCommands))
	for _, c := range BDCommands {
		set[c] = struct{}{}
	}
	for _, c := range UHDCommands {
		set[c] = struct{}{}
	}
	return set
}()

// IsCommand reports whether name (any case) is a recognized remote button
func IsCommand(name string) bool {
	_, ok := commandSet[strings.ToUpper(name)]
	return ok
}

// Commands returns every recognized button, sorted
func Commands() []string {
	out := make([]string, 0, len(commandSet))
	for c := range commandSet {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Describe returns the human-readable description for a button, or "" if unknown
func Describe(name string) string {
	return commandDescriptions[strings.ToUpper(name)]
}

// formCommand builds the virtual button-click form body for a token
func formCommand(token string) string {
	return "cCMD_" + token + ".x=100&cCMD_" + token + ".y=100"
}
