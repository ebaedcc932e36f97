package webhook

// EventKind tags the outcome of classifying a webhook payload.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventMessage
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventStatus:
		return "status"
	default:
		return "unrecognized"
	}
}

// MessageEvent is an inbound message plus the sender profile shipped with it.
type MessageEvent struct {
	Message InboundMessage
	Profile *ContactProfile
}

// Event is the classified form of a webhook delivery.
type Event struct {
	Kind    EventKind
	Message *MessageEvent
	Status  *StatusUpdate
}

// Classify inspects a raw payload and produces a message event, a status
// event, or an unrecognized marker. Only the first element of each list is
// considered; the provider delivers one item per request.
func Classify(p Payload) Event {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return Event{Kind: EventUnrecognized}
	}
	value := p.Entry[0].Changes[0].Value

	if len(value.Messages) > 0 {
		ev := &MessageEvent{Message: value.Messages[0]}
		if len(value.Contacts) > 0 {
			ev.Profile = &value.Contacts[0]
		}
		return Event{Kind: EventMessage, Message: ev}
	}

	if len(value.Statuses) > 0 {
		st := value.Statuses[0]
		return Event{Kind: EventStatus, Status: &st}
	}

	return Event{Kind: EventUnrecognized}
}
