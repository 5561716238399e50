package watcher

import (
	"sort"
	"time"
)

// DefaultRenameWindow is how far apart a remove and a create may be and still
// be paired into a rename.
const DefaultRenameWindow = 100 * time.Millisecond

// DetectRenames pairs removes with creates on a different path that happened
// within window of each other and replaces each pair with one rename event
// (Path is the created path, FromPath the removed one). Each remove, in order,
// takes the earliest still-unmatched create. Anything unpaired passes through.
//
// This is a heuristic. Two unrelated operations, a delete here and a create
// there inside the same window, are reported as a rename; the native layer
// does not carry enough information to tell them apart.
func DetectRenames(events []Event, window time.Duration) []Event {
	var removes, creates, out []Event
	for _, ev := range events {
		switch ev.Kind {
		case EventRemove:
			removes = append(removes, ev)
		case EventCreate:
			creates = append(creates, ev)
		default:
			out = append(out, ev)
		}
	}

	if len(removes) == 0 || len(creates) == 0 {
		return events
	}

	sort.SliceStable(creates, func(i, j int) bool { return creates[i].Timestamp.Before(creates[j].Timestamp) })
	matched := make([]bool, len(creates))

	for _, rm := range removes {
		pick := -1
		for j, cr := range creates {
			if matched[j] || cr.Path == rm.Path {
				continue
			}
			if absDuration(cr.Timestamp.Sub(rm.Timestamp)) <= window {
				pick = j
				break
			}
		}

		if pick < 0 {
			out = append(out, rm)
			continue
		}

		matched[pick] = true
		out = append(out, Event{
			Kind:      EventRename,
			Path:      creates[pick].Path,
			FromPath:  rm.Path,
			Timestamp: creates[pick].Timestamp,
		})
	}

	for j, cr := range creates {
		if !matched[j] {
			out = append(out, cr)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
