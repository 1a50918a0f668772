package calendar

// DateTimeZone is a wall-clock instant together with the time zone it is expressed in.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Event is the provider-independent view of one calendar entry.
type Event struct {
	ID               string        `json:"id"`
	Subject          *string       `json:"subject"`
	Start            *DateTimeZone `json:"start"`
	End              *DateTimeZone `json:"end"`
	Location         *string       `json:"location"`
	IsOnlineMeeting  bool          `json:"isOnlineMeeting"`
	OnlineMeetingURL *string       `json:"onlineMeetingUrl"`
	Organizer        *string       `json:"organizer"`
}

type graphEmailAddress struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

type graphEvent struct {
	ID       string        `json:"id"`
	Subject  *string       `json:"subject"`
	Start    *DateTimeZone `json:"start"`
	End      *DateTimeZone `json:"end"`
	Location *struct {
		DisplayName *string `json:"displayName"`
	} `json:"location"`
	IsOnlineMeeting *bool `json:"isOnlineMeeting"`
	OnlineMeeting   *struct {
		JoinURL *string `json:"joinUrl"`
	} `json:"onlineMeeting"`
	Organizer *struct {
		EmailAddress *graphEmailAddress `json:"emailAddress"`
	} `json:"organizer"`
}

type graphEventPage struct {
	Value []graphEvent `json:"value"`
}

func normalizeEvent(native graphEvent) Event {
	event := Event{
		ID:      native.ID,
		Subject: nonEmpty(native.Subject),
		Start:   nonEmptyDateTime(native.Start),
		End:     nonEmptyDateTime(native.End),
	}
	if native.Location != nil {
		event.Location = nonEmpty(native.Location.DisplayName)
	}
	if native.IsOnlineMeeting != nil {
		event.IsOnlineMeeting = *native.IsOnlineMeeting
	}
	if native.OnlineMeeting != nil {
		event.OnlineMeetingURL = nonEmpty(native.OnlineMeeting.JoinURL)
	}
	if native.Organizer != nil && native.Organizer.EmailAddress != nil {
		event.Organizer = nonEmpty(native.Organizer.EmailAddress.Name)
		if event.Organizer == nil {
			event.Organizer = nonEmpty(native.Organizer.EmailAddress.Address)
		}
	}
	return event
}

func nonEmpty(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}

func nonEmptyDateTime(value *DateTimeZone) *DateTimeZone {
	if value == nil || value.DateTime == "" {
		return nil
	}
	return value
}
