package bluray

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// codeNone marks a missing or unparsable state code
const codeNone = -1

// stateRule is one row of the classification table. A rule with anyExt
// set matches whatever the extended query said, including nothing.
type stateRule struct {
	basic  int
	ext    int
	anyExt bool
	state  State
	label  string
}

// stateTable classifies (basic PST code, extended GET_STATUS code).
// Rows are checked in order; no match means unknown.
//
// The basic line reports 0 both for "stopped at a menu" and for a player
// that dropped to standby; only the extended line tells them apart.
var stateTable = []stateRule{
	{basic: 0, ext: 0, state: StateStandby, label: StatusPowerOff},
	{basic: 0, anyExt: true, state: StateStopped, label: StatusStopped},
	{basic: 1, anyExt: true, state: StatePlaying, label: StatusPlayback},
	{basic: 2, anyExt: true, state: StatePaused, label: StatusPausePlayback},
}

func classify(basic, ext int) (State, string) {
	for _, r := range stateTable {
		if r.basic != basic {
			continue
		}
		if r.anyExt || (ext != codeNone && r.ext == ext) {
			return r.state, r.label
		}
	}
	return StateUnknown, StatusUnknown
}

// extendedStatus is what the GET_STATUS line carried
type extendedStatus struct {
	state          int
	duration       int
	chapterCurrent *int
	chapterTotal   *int
}

func parseField(fields []string, i int) (int, bool, error) {
	if i >= len(fields) {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// parseExtended reads state [0], duration [4] and chapters [5]/[6].
// Parsing stops at the first bad field; complete is false in that case and
// the state code must not be trusted for classification.
func parseExtended(fields []string) (ext extendedStatus, complete bool) {
	ext.state = codeNone

	state, ok, err := parseField(fields, 0)
	if err != nil {
		return ext, false
	}
	if ok {
		ext.state = state
	} else {
		ext.state = 0
	}

	duration, _, err := parseField(fields, 4)
	if err != nil {
		return ext, false
	}
	ext.duration = duration

	cur, ok, err := parseField(fields, 5)
	if err != nil {
		return ext, false
	}
	if ok {
		ext.chapterCurrent = &cur
	}

	total, ok, err := parseField(fields, 6)
	if err != nil {
		return ext, false
	}
	if ok {
		ext.chapterTotal = &total
	}
	return ext, true
}

// parseBasic reads the PST line: play state [0] and elapsed seconds [1]
func parseBasic(fields []string) (code, position int) {
	code, ok, err := parseField(fields, 0)
	if err != nil || !ok {
		code = codeNone
	}
	position, _, err = parseField(fields, 1)
	if err != nil {
		position = 0
	}
	// negative position means no disc
	if position < 0 {
		position = 0
	}
	return code, position
}

// GetPlayStatus merges the basic and, when the player supports it, the
// extended status query into one snapshot. Only a ConnectError on the
// basic query is returned as an error.
func (c *Client) GetPlayStatus(ctx context.Context) (PlayStatus, error) {
	reply, err := c.probe(ctx, probeBasic)
	if err != nil {
		return PlayStatus{}, err
	}

	switch {
	case reply.Status == ReplyOff:
		return PlayStatus{State: StateOff, StatusString: StatusPowerOff}, nil
	case reply.Status == ReplyError || len(reply.Fields) == 0:
		return PlayStatus{State: StateUnknown, StatusString: StatusUnknown}, nil
	}

	basic, position := parseBasic(reply.Fields)
	status := PlayStatus{Position: position}
	ext := codeNone

	if c.PlayerType() != PlayerTypeUHD {
		extReply, err := c.probe(ctx, probeExtended)
		if err != nil {
			c.logger.Debug("Extended status unavailable", slog.Any("error", err))
		} else if extReply.Status == ReplyOK && len(extReply.Fields) > 0 {
			parsed, complete := parseExtended(extReply.Fields)
			status.Duration = parsed.duration
			status.ChapterCurrent = parsed.chapterCurrent
			status.ChapterTotal = parsed.chapterTotal
			if complete {
				ext = parsed.state
			}
		}
	}

	status.State, status.StatusString = classify(basic, ext)
	return status, nil
}
