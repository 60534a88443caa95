package segment

import (
	"fmt"
	"strconv"
	"strings"
)

// 29.97 fps drop-frame：每分钟丢弃 2 个帧号，逢 10 分钟不丢
const (
	nominalFPS      = 30
	dropPerMinute   = 2
	framesPerSecond = 30000.0 / 1001.0
)

// ParseTimecode 解析 HH:MM:SS:FF / HH:MM:SS;FF / HH:MM:SS，返回 drop-frame 帧号
func ParseTimecode(tc string) (int64, error) {
	s := strings.TrimSpace(tc)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}
	var parts []string
	if i := strings.LastIndexAny(s, ";."); i >= 0 {
		parts = append(strings.Split(s[:i], ":"), s[i+1:])
	} else {
		parts = strings.Split(s, ":")
	}
	if len(parts) == 3 {
		parts = append(parts, "0")
	}
	if len(parts) != 4 {
		return 0, fmt.Errorf("malformed timecode %q", tc)
	}

	var v [4]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed timecode %q", tc)
		}
		v[i] = n
	}
	hh, mm, ss, ff := v[0], v[1], v[2], v[3]
	if mm >= 60 || ss >= 60 || ff >= nominalFPS {
		return 0, fmt.Errorf("timecode %q out of range", tc)
	}

	totalMinutes := hh*60 + mm
	frames := (hh*3600+mm*60+ss)*nominalFPS + ff
	frames -= dropPerMinute * (totalMinutes - totalMinutes/10)
	if frames < 0 {
		frames = 0
	}
	return frames, nil
}

// FramesToSeconds 帧号换算为实际秒数
func FramesToSeconds(frames int64) float64 {
	return float64(frames) / framesPerSecond
}
