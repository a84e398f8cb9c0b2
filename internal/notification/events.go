package notification

import "buddychat/internal/store"

const (
	RelatedMatch = "MATCH"
	RelatedGroup = "GROUP"
)

func MatchEvent(userID, matchID int64, matchedName string) Event {
	return Event{
		UserID:      userID,
		Type:        store.NotifyMatch,
		Title:       "New Match!",
		Message:     "You matched with " + matchedName + "!",
		RelatedID:   matchID,
		RelatedType: RelatedMatch,
	}
}

func DirectMessageEvent(userID, matchID int64, senderName string) Event {
	return Event{
		UserID:      userID,
		Type:        store.NotifyMessage,
		Title:       "New Message",
		Message:     senderName + " sent you a message",
		RelatedID:   matchID,
		RelatedType: RelatedMatch,
	}
}

func GroupMessageEvent(userID, roomID int64, senderName, activityTitle string) Event {
	if activityTitle == "" {
		activityTitle = "a group chat"
	}
	return Event{
		UserID:      userID,
		Type:        store.NotifyMessage,
		Title:       "Group Chat",
		Message:     senderName + " sent a message in " + activityTitle,
		RelatedID:   roomID,
		RelatedType: RelatedGroup,
	}
}
