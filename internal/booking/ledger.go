package booking

import (
	"bytes"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"coffee-booking-backend/internal/calendar"
	"coffee-booking-backend/internal/model"
)

// Slot is the public view of one weekly slot. The booker is never exposed.
type Slot struct {
	Name   string `json:"name"`
	Booked bool   `json:"booked"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// Ledger is the booking state of one month, slots in week order.
type Ledger struct {
	CurrentMonth string
	Slots        []Slot
}

// RemainingSlots counts the unbooked slots.
func (l Ledger) RemainingSlots() int {
	n := 0
	for _, s := range l.Slots {
		if !s.Booked {
			n++
		}
	}
	return n
}

// Slot returns the named slot.
func (l Ledger) Slot(name string) (Slot, bool) {
	for _, s := range l.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// MarshalJSON renders the ledger with "slots" as an object keyed by slot name
// in week order, followed by the counter, the month key and the slot details.
func (l Ledger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"slots":{`)
	for i, s := range l.Slots {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		if s.Booked {
			buf.WriteString(":true")
		} else {
			buf.WriteString(":false")
		}
	}
	buf.WriteString(`},"remainingSlots":`)
	buf.WriteString(strconv.Itoa(l.RemainingSlots()))

	tail, err := json.Marshal(struct {
		CurrentMonth string `json:"currentMonth"`
		SlotDetails  []Slot `json:"slotDetails"`
	}{l.CurrentMonth, l.Slots})
	if err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	buf.Write(tail[1:])
	return buf.Bytes(), nil
}

// newLedger converts stored rows into the public ledger.
func newLedger(month string, rows []model.BookingSlot, loc *time.Location) Ledger {
	l := Ledger{CurrentMonth: month, Slots: make([]Slot, len(rows))}
	for i, row := range rows {
		s := Slot{Name: row.Name, Booked: row.Booked}
		if r, err := calendar.WeekRange(month, i, len(rows), loc); err == nil {
			s.From, s.To = calendar.DayKey(r.From), calendar.DayKey(r.To)
		} else {
			log.Printf("No date range for slot %q of %s: %v", row.Name, month, err)
		}
		l.Slots[i] = s
	}
	return l
}
