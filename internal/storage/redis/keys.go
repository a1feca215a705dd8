package redis

import (
	"fmt"

	"github.com/mcoot/tradegame-bot/internal/model"
)

// Key prefix for all bot-related data
const keyPrefix = "tradegame"

// Key generation functions for each entity type

// teamKey returns the Redis key for a Team
func teamKey(id model.TeamID) string {
	return fmt.Sprintf("%s:team:%s", keyPrefix, id)
}

// teamNameIndexKey returns the Redis key for the name -> team_id index
func teamNameIndexKey(name string) string {
	return fmt.Sprintf("%s:idx:team_name:%s", keyPrefix, name)
}

// teamsIndexKey returns the Redis key for the SET of all team IDs
func teamsIndexKey() string {
	return fmt.Sprintf("%s:idx:teams", keyPrefix)
}

// cardKey returns the Redis key for a catalog Card
func cardKey(id model.CardID) string {
	return fmt.Sprintf("%s:card:%s", keyPrefix, id)
}

// cardsIndexKey returns the Redis key for the SET of all card IDs
func cardsIndexKey() string {
	return fmt.Sprintf("%s:idx:cards", keyPrefix)
}

// credentialKey returns the Redis key for a RoleCredential
func credentialKey(id model.CredentialID) string {
	return fmt.Sprintf("%s:credential:%s", keyPrefix, id)
}

// credentialsIndexKey returns the Redis key for the SET of credential IDs
func credentialsIndexKey() string {
	return fmt.Sprintf("%s:idx:credentials", keyPrefix)
}

// inventoryKey returns the Redis key holding one line's quantity as an
// integer string
func inventoryKey(teamID model.TeamID, cardID model.CardID) string {
	return fmt.Sprintf("%s:inventory:%s:%s", keyPrefix, teamID, cardID)
}

// inventoryIndexKey returns the Redis key for the SET of card IDs a team
// holds
func inventoryIndexKey(teamID model.TeamID) string {
	return fmt.Sprintf("%s:idx:inventory:%s", keyPrefix, teamID)
}

// missionKey returns the Redis key for a Mission
func missionKey(code string) string {
	return fmt.Sprintf("%s:mission:%s", keyPrefix, code)
}

// missionsIndexKey returns the Redis key for the SET of mission codes
func missionsIndexKey() string {
	return fmt.Sprintf("%s:idx:missions", keyPrefix)
}

// announcementKey returns the Redis key for an Announcement
func announcementKey(id model.AnnouncementID) string {
	return fmt.Sprintf("%s:announcement:%d", keyPrefix, id)
}

// announcementsIndexKey returns the Redis key for the SET of announcement IDs
func announcementsIndexKey() string {
	return fmt.Sprintf("%s:idx:announcements", keyPrefix)
}

// announcementSeqKey returns the Redis key of the announcement ID counter
func announcementSeqKey() string {
	return fmt.Sprintf("%s:seq:announcement", keyPrefix)
}

// tradeKey returns the Redis key for a TradeProposal
func tradeKey(id model.TradeID) string {
	return fmt.Sprintf("%s:trade:%s", keyPrefix, id)
}

// pendingTradesIndexKey returns the Redis key for the SET of pending
// trade IDs
func pendingTradesIndexKey() string {
	return fmt.Sprintf("%s:idx:trades_pending", keyPrefix)
}
