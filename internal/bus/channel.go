package bus

type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelCLI   Channel = "cli"
)
