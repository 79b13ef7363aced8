package domain

// Channel is an outbound messaging channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelLinkedIn Channel = "linkedin"
	ChannelVoice    Channel = "voice"
	ChannelMail     Channel = "mail"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelLinkedIn, ChannelVoice, ChannelMail}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelLinkedIn, ChannelVoice, ChannelMail:
		return true
	}
	return false
}

// ContactField returns the lead field a send on this channel needs.
func (c Channel) ContactField() ContactField {
	switch c {
	case ChannelEmail:
		return FieldEmail
	case ChannelSMS, ChannelVoice:
		return FieldPhone
	case ChannelLinkedIn:
		return FieldSocialHandle
	case ChannelMail:
		return FieldMailingAddress
	}
	return ""
}

// ResourceKind returns the shared sending resource a channel consumes.
// Postal mail goes through a print vendor and holds no finite resource.
func (c Channel) ResourceKind() (ResourceKind, bool) {
	switch c {
	case ChannelEmail:
		return ResourceMailbox, true
	case ChannelSMS, ChannelVoice:
		return ResourcePhone, true
	case ChannelLinkedIn:
		return ResourceSocialSeat, true
	}
	return "", false
}

// RequiresDNCR reports whether the channel is subject to do-not-call registry checks.
func (c Channel) RequiresDNCR() bool {
	return c == ChannelSMS || c == ChannelVoice
}
