package gtfs

import "github.com/theoremus-urban-solutions/transitcore/utils"

func newServiceCalendar(serviceID string) *ServiceCalendar {
	return &ServiceCalendar{
		ServiceID: serviceID,
		Added:     map[utils.Date]struct{}{},
		Removed:   map[utils.Date]struct{}{},
	}
}

// hasRange reports whether the service came with a calendar.txt row.
func (c *ServiceCalendar) hasRange() bool {
	return !c.Start.IsZero() && !c.End.IsZero()
}

// ActiveOn reports whether trips of this service run on d. Exceptions from
// calendar_dates.txt win over the weekly pattern.
func (c *ServiceCalendar) ActiveOn(d utils.Date) bool {
	if c == nil {
		return false
	}
	if _, removed := c.Removed[d]; removed {
		return false
	}
	if _, added := c.Added[d]; added {
		return true
	}
	if !c.hasRange() || d.Before(c.Start) || d.After(c.End) {
		return false
	}
	return c.Weekdays[d.Weekday()]
}
