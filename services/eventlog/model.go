package eventlog

import "time"

// systemEventModel maps the rsyslog ommysql SystemEvents table.
type systemEventModel struct {
	ID                 int64      `gorm:"column:ID;primaryKey"`
	CustomerID         *int64     `gorm:"column:CustomerID"`
	ReceivedAt         *time.Time `gorm:"column:ReceivedAt"`
	DeviceReportedTime *time.Time `gorm:"column:DeviceReportedTime"`
	Facility           *int       `gorm:"column:Facility"`
	Priority           *int       `gorm:"column:Priority"`
	FromHost           *string    `gorm:"column:FromHost"`
	Message            *string    `gorm:"column:Message"`
	NTSeverity         *int       `gorm:"column:NTSeverity"`
	Importance         *int       `gorm:"column:Importance"`
	EventSource        *string    `gorm:"column:EventSource"`
	EventUser          *string    `gorm:"column:EventUser"`
	EventCategory      *int       `gorm:"column:EventCategory"`
	EventID            *int       `gorm:"column:EventID"`
	InfoUnitID         *int       `gorm:"column:InfoUnitID"`
	SysLogTag          *string    `gorm:"column:SysLogTag"`
	EventLogType       *string    `gorm:"column:EventLogType"`
	SystemID           *int       `gorm:"column:SystemID"`

	Properties []systemEventPropertyModel `gorm:"foreignKey:SystemEventID;references:ID"`
}

func (systemEventModel) TableName() string { return "SystemEvents" }

type systemEventPropertyModel struct {
	ID            int64   `gorm:"column:ID;primaryKey"`
	SystemEventID int64   `gorm:"column:SystemEventID"`
	ParamName     *string `gorm:"column:ParamName"`
	ParamValue    *string `gorm:"column:ParamValue"`
}

func (systemEventPropertyModel) TableName() string { return "SystemEventsProperties" }

// Event is one syslog record as exposed to callers.
type Event struct {
	ID                 int64      `json:"id"`
	ReceivedAt         time.Time  `json:"received_at"`
	DeviceReportedTime *time.Time `json:"device_reported_time"`
	Facility           int        `json:"facility"`
	Priority           int        `json:"priority"`
	FromHost           string     `json:"from_host"`
	Message            string     `json:"message"`
	EventSource        string     `json:"event_source"`
	EventUser          string     `json:"event_user"`
	EventCategory      int        `json:"event_category"`
	EventID            int        `json:"event_id"`
	EventLogType       string     `json:"event_log_type"`
	SysLogTag          string     `json:"syslog_tag"`
	Properties         []Property `json:"properties,omitempty"`
}

// Property is a name/value pair attached to an event.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (m systemEventModel) toEvent() Event {
	ev := Event{
		ID:                 m.ID,
		DeviceReportedTime: m.DeviceReportedTime,
		Facility:           intOrZero(m.Facility),
		Priority:           intOrZero(m.Priority),
		FromHost:           stringOrEmpty(m.FromHost),
		Message:            stringOrEmpty(m.Message),
		EventSource:        stringOrEmpty(m.EventSource),
		EventUser:          stringOrEmpty(m.EventUser),
		EventCategory:      intOrZero(m.EventCategory),
		EventID:            intOrZero(m.EventID),
		EventLogType:       stringOrEmpty(m.EventLogType),
		SysLogTag:          stringOrEmpty(m.SysLogTag),
	}
	if m.ReceivedAt != nil {
		ev.ReceivedAt = *m.ReceivedAt
	}
	for _, p := range m.Properties {
		ev.Properties = append(ev.Properties, Property{Name: stringOrEmpty(p.ParamName), Value: stringOrEmpty(p.ParamValue)})
	}
	return ev
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
