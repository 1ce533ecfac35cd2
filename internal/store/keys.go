package store

const (
	chatsPrefix        = "oficiogen_chats"
	subscriptionPrefix = "oficiogen_subscription"
)

// ChatsKey is the key of a profile's session collection
func ChatsKey(profileID string) string {
	return chatsPrefix + ":" + profileID
}

// SubscriptionKey is the key of a profile's subscription record
func SubscriptionKey(profileID string) string {
	return subscriptionPrefix + ":" + profileID
}
