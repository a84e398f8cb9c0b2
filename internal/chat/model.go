package chat

import "buddychat/internal/store"

// Message is what clients see: the stored message plus its sender's name.
type Message struct {
	store.DirectMessage
	SenderName string `json:"senderName"`
}

type SendRequest struct {
	MatchID   int64
	SenderID  int64
	Content   string
	MediaURL  string
	MediaType string
}

// MatchSummary is one row of the caller's match list.
type MatchSummary struct {
	*store.Match
	PartnerID   int64  `json:"partnerId"`
	PartnerName string `json:"partnerName"`
	UnreadCount int    `json:"unreadCount"`
}

// ---------------------------------------------
// REST payloads
// ---------------------------------------------

type sendBody struct {
	MatchID   int64  `json:"matchId"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

type recordMatchBody struct {
	User1ID            int64    `json:"user1Id"`
	User2ID            int64    `json:"user2Id"`
	CompatibilityScore *float64 `json:"compatibilityScore"`
}

type statusBody struct {
	Status store.MatchStatus `json:"status"`
}
