package chat

// Destination conventions of the gateway.
const (
	notificationsTopic = "/user/queue/notifications"
)

func roomTopic(roomID string) string   { return "/topic/chat/" + roomID }
func roomPublish(roomID string) string { return "/app/chat/" + roomID }
