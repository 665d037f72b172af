package domain

// Role partitions connected identities. Users open conversations,
// agents answer them as an undifferentiated pool.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

// Key addresses one append-only log in the delivery store.
type Key string

// ConversationFor returns the store key shared by a user and the agent pool.
// The user side names the conversation: every agent that joins it reads and
// writes under the same key.
func ConversationFor(userID string) Key {
	return Key("conversation:" + userID)
}
