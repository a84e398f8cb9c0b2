package pubsub

import "strconv"

func MatchTopic(matchID int64) string {
	return "/topic/match/" + strconv.FormatInt(matchID, 10)
}

func MatchTypingTopic(matchID int64) string {
	return MatchTopic(matchID) + "/typing"
}

func GroupTopic(roomID int64) string {
	return "/topic/group/" + strconv.FormatInt(roomID, 10)
}

func GroupTypingTopic(roomID int64) string {
	return GroupTopic(roomID) + "/typing"
}

func NotificationTopic(userID int64) string {
	return "/topic/notifications/" + strconv.FormatInt(userID, 10)
}
