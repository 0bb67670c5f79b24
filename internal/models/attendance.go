package models

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SubEventAttendance struct {
	ID             primitive.ObjectID `json:"id"`
	Name           string             `json:"name"`
	CheckedInCount int                `json:"checked_in_count"`
}

type AttendeeSummary struct {
	User              uuid.UUID `json:"user"`
	Selected          bool      `json:"selected"`
	CheckedIn         bool      `json:"checked_in"`
	SubEventsAttended int       `json:"sub_events_attended"`
}

// AttendanceReport summarizes an event's roster, for organizers and for the
// record kept when a secret rotation resets check-ins.
type AttendanceReport struct {
	EventID         primitive.ObjectID   `json:"event_id"`
	Name            string               `json:"name"`
	RegistrantCount int                  `json:"registrant_count"`
	SelectedCount   int                  `json:"selected_count"`
	CheckedInCount  int                  `json:"checked_in_count"`
	SubEvents       []SubEventAttendance `json:"sub_events"`
	Attendees       []AttendeeSummary    `json:"attendees"`
}

func (e *Event) Attendance() AttendanceReport {
	report := AttendanceReport{
		EventID:         e.ID,
		Name:            e.Name,
		RegistrantCount: len(e.Registrants),
		SubEvents:       make([]SubEventAttendance, 0, len(e.SubEvents)),
		Attendees:       make([]AttendeeSummary, 0, len(e.Registrants)),
	}

	perUser := make(map[uuid.UUID]int)
	for _, s := range e.SubEvents {
		report.SubEvents = append(report.SubEvents, SubEventAttendance{
			ID:             s.ID,
			Name:           s.Name,
			CheckedInCount: len(s.CheckedIn),
		})
		for _, u := range s.CheckedIn {
			perUser[u]++
		}
	}

	for _, r := range e.Registrants {
		if r.Selected {
			report.SelectedCount++
		}
		if r.CheckedIn {
			report.CheckedInCount++
		}
		report.Attendees = append(report.Attendees, AttendeeSummary{
			User:              r.User,
			Selected:          r.Selected,
			CheckedIn:         r.CheckedIn,
			SubEventsAttended: perUser[r.User],
		})
	}
	return report
}
