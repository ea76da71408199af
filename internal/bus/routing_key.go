package bus

// RoutingKey joins channel and chat ID as "channel:chatID".
func RoutingKey(channel Channel, chatID string) string {
	if chatID == "" {
		return string(channel)
	}

	return string(channel) + ":" + chatID
}
