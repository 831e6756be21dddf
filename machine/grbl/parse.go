package grbl

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/proxscan/coord"
	"github.com/mastercactapus/proxscan/machine"
)

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return p, err
		}
		p = p.Set(coord.Axes[i], v)
	}
	return p, nil
}

// parseStatus applies a `<Status|MPos:x,y,z|...>` report to the previous
// state. Grbl only sends WCO periodically, and may send WPos instead of
// MPos depending on $10.
func parseStatus(stat machine.State, data string, now time.Time) (*machine.State, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return nil, errors.New("not a status report: " + data)
	}
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.Status = parts[0]
	var err error
	var wpos *coord.Point
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WPos":
			var p coord.Point
			p, err = parseCoords(sParts[1])
			wpos = &p
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		}
		if err != nil {
			return nil, err
		}
	}
	if wpos != nil {
		stat.MPos = wpos.Add(stat.WCO)
	}
	stat.Updated = now
	return &stat, nil
}

// parseMessage strips the brackets from a push message like `[MSG:Caution: Unlocked]`.
func parseMessage(data string) (kind, body string, err error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "[") || !strings.HasSuffix(data, "]") {
		return "", "", errors.New("unknown PUSH message: " + data)
	}
	data = strings.TrimSuffix(strings.TrimPrefix(data, "["), "]")
	parts := strings.SplitN(data, ":", 2)
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}
