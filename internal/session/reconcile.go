package session

import (
	"main/internal/wire"
)

// reconcilePayloadType fixes payload types the live venue emits under a
// different numeric code than its documented numbering. The one attested
// case is a subscribe-spots response arriving under the spot-event code;
// a spot event always carries at least one price double, a subscribe
// response never does.
//
// TODO: revalidate against the live venue after its next protocol release;
// this may be a transient single-environment bug.
func reconcilePayloadType(env wire.Envelope) (uint32, bool) {
	if env.PayloadType == wire.PTSpotEvent && !wire.HasFixed64Field(env.Payload) {
		return wire.PTSubscribeSpotsRes, true
	}
	return env.PayloadType, false
}
