// internal/model/channel.go
package model

const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelWhatsApp  = "whatsapp"
	ChannelLinkedIn  = "linkedin"
	ChannelFacebook  = "facebook"
	ChannelInstagram = "instagram"
	ChannelTelegram  = "telegram"
)

var knownChannels = map[string]bool{
	ChannelEmail:     true,
	ChannelSMS:       true,
	ChannelWhatsApp:  true,
	ChannelLinkedIn:  true,
	ChannelFacebook:  true,
	ChannelInstagram: true,
	ChannelTelegram:  true,
}

// KnownChannel reports whether ch is a channel this engine can deliver to.
func KnownChannel(ch string) bool {
	return knownChannels[ch]
}

// AllChannels lists every deliverable channel.
func AllChannels() []string {
	return []string{
		ChannelEmail,
		ChannelSMS,
		ChannelWhatsApp,
		ChannelLinkedIn,
		ChannelFacebook,
		ChannelInstagram,
		ChannelTelegram,
	}
}
