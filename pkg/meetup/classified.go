package meetup

import "github.com/Sternrassler/harvester/pkg/item"

// ClassifiedFields are the paths removed from events when classified data
// must not leave the connector.
var ClassifiedFields = [][]string{
	{"group", "topics"},
	{"event_hosts"},
	{"rsvps"},
	{"venue"},
}

// FilterClassified strips every classified field from it.
func FilterClassified(it *item.RawItem) {
	for _, path := range ClassifiedFields {
		it.Strip(path...)
	}
}
