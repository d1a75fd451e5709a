package voice

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/haloweavedev/laine/internal/callstate"
)

// ordinalMap converts ordinal words to 1-based slot positions.
var ordinalMap = map[string]int{
	"first": 1, "second": 2, "third": 3,
	"1st": 1, "2nd": 2, "3rd": 3,
}

var (
	optionRE           = regexp.MustCompile(`(?i)^(?:option|number|#|choice)?\s*(\d+)$`)
	timeWithMeridiemRE = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?|a|p)\b`)
	monthDayRE         = regexp.MustCompile(`(?i)(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?`)
	bareDayRE          = regexp.MustCompile(`(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)`)
	bareNumRE          = regexp.MustCompile(`\b(\d{1,2})\b`)
)

var monthMap = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var dayOfWeekMap = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

// MatchSelection matches the caller's words against the presented slots.
// It returns every slot the description fits: the handler selects on
// exactly one match, re-presents the narrowed set on several, and re-asks
// on none. It never picks the chronologically first of an ambiguous set.
func MatchSelection(message string, slots []callstate.Slot) []callstate.Slot {
	msg := strings.TrimSpace(strings.ToLower(message))
	if msg == "" || len(slots) == 0 {
		return nil
	}

	// Explicit position: "2", "option 1", "the first one".
	if m := optionRE.FindStringSubmatch(msg); len(m) > 1 {
		if num, err := strconv.Atoi(m[1]); err == nil && num >= 1 && num <= len(slots) {
			return []callstate.Slot{slots[num-1]}
		}
	}
	// Ordinals only count as positions outside date context ("Mar 4th").
	if !monthDayRE.MatchString(msg) {
		for word, num := range ordinalMap {
			if strings.Contains(msg, word) && num <= len(slots) {
				return []callstate.Slot{slots[num-1]}
			}
		}
	}

	// Clock time with meridiem: "2pm", "10:30 am", "the 2 p.m. one".
	if m := timeWithMeridiemRE.FindStringSubmatch(msg); len(m) > 0 {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		explicitMinute := m[2] != ""
		if explicitMinute {
			minute, _ = strconv.Atoi(m[2])
		}
		meridiem := strings.ReplaceAll(strings.ToLower(m[3]), ".", "")
		if strings.HasPrefix(meridiem, "p") && hour != 12 {
			hour += 12
		} else if strings.HasPrefix(meridiem, "a") && hour == 12 {
			hour = 0
		}

		var matches []callstate.Slot
		for _, s := range slots {
			if s.StartTime.Hour() != hour {
				continue
			}
			if explicitMinute && s.StartTime.Minute() != minute {
				continue
			}
			if !explicitMinute && s.StartTime.Minute() != 0 {
				// "2pm" means 2:00 when a 2:00 slot exists; otherwise any
				// slot in the 2 o'clock hour counts.
				continue
			}
			matches = append(matches, s)
		}
		if len(matches) == 0 && !explicitMinute {
			for _, s := range slots {
				if s.StartTime.Hour() == hour {
					matches = append(matches, s)
				}
			}
		}
		return matches
	}

	// Date references: "Tuesday", "March 4", "the 28th".
	if matches := matchSlotsByDate(msg, slots); matches != nil {
		return matches
	}

	// Bare number: a slot position first, a bare hour second.
	if m := bareNumRE.FindStringSubmatch(msg); len(m) > 1 {
		num, _ := strconv.Atoi(m[1])
		if num >= 1 && num <= len(slots) {
			return []callstate.Slot{slots[num-1]}
		}
		var matches []callstate.Slot
		for _, s := range slots {
			h := s.StartTime.Hour()
			if h == num || h == num+12 || (num == 12 && h == 0) {
				matches = append(matches, s)
			}
		}
		return matches
	}

	return nil
}

// matchSlotsByDate matches a date reference against presented slots:
// month+day ("March 4"), day of week ("Tuesday"), bare ordinal day
// ("the 28th"). Returns nil when the message has no date reference.
func matchSlotsByDate(msg string, slots []callstate.Slot) []callstate.Slot {
	if m := monthDayRE.FindStringSubmatch(msg); len(m) > 2 {
		month, ok := monthMap[strings.ToLower(m[1])[:3]]
		day, _ := strconv.Atoi(m[2])
		if ok {
			var matches []callstate.Slot
			for _, s := range slots {
				if s.StartTime.Month() == month && s.StartTime.Day() == day {
					matches = append(matches, s)
				}
			}
			return matches
		}
	}

	for word, dow := range dayOfWeekMap {
		if strings.Contains(msg, word) {
			var matches []callstate.Slot
			for _, s := range slots {
				if s.StartTime.Weekday() == dow {
					matches = append(matches, s)
				}
			}
			return matches
		}
	}

	if m := bareDayRE.FindStringSubmatch(msg); len(m) > 1 {
		day, _ := strconv.Atoi(m[1])
		if day >= 1 && day <= 31 {
			var matches []callstate.Slot
			for _, s := range slots {
				if s.StartTime.Day() == day {
					matches = append(matches, s)
				}
			}
			return matches
		}
	}

	return nil
}

// spreadAcrossDays picks slots spread over multiple days. maxPerDay limits
// slots from any single day; total caps the result. Input must be sorted
// chronologically; output stays chronological.
func spreadAcrossDays(slots []callstate.Slot, total, maxPerDay int) []callstate.Slot {
	if len(slots) <= total {
		return slots
	}

	type dayGroup struct {
		date  string
		slots []callstate.Slot
	}
	var days []dayGroup
	dayIdx := map[string]int{}
	for _, s := range slots {
		d := s.StartTime.Format("2006-01-02")
		if idx, ok := dayIdx[d]; ok {
			days[idx].slots = append(days[idx].slots, s)
		} else {
			dayIdx[d] = len(days)
			days = append(days, dayGroup{date: d, slots: []callstate.Slot{s}})
		}
	}

	var result []callstate.Slot
	for round := 0; round < maxPerDay && len(result) < total; round++ {
		for i := range days {
			if round < len(days[i].slots) && len(result) < total {
				result = append(result, days[i].slots[round])
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// formatSlotDisplay renders a slot's spoken form in the practice timezone.
func formatSlotDisplay(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Monday, January 2 at 3:04 PM")
}

// spokenSlotList phrases the candidate slots as one spoken sentence.
func spokenSlotList(slots []callstate.Slot) string {
	switch len(slots) {
	case 0:
		return ""
	case 1:
		return slots[0].Display
	case 2:
		return slots[0].Display + " or " + slots[1].Display
	}
	parts := make([]string, 0, len(slots))
	for _, s := range slots[:len(slots)-1] {
		parts = append(parts, s.Display)
	}
	return fmt.Sprintf("%s, or %s", strings.Join(parts, ", "), slots[len(slots)-1].Display)
}
