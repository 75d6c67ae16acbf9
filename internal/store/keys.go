package store

import "strings"

// Key namespaces shared by the Redis backend and the in-memory store.
//
//	game:{gameID}
//	progress:{gameID}:{playerID}:{role}
//	claim:{gameID}:{playerID}:{kind}

func gameKey(gameID string) string {
	return "game:" + gameID
}

func progressKey(gameID, playerID, role string) string {
	return "progress:" + gameID + ":" + playerID + ":" + role
}

func claimKey(gameID, playerID, kind string) string {
	return "claim:" + gameID + ":" + playerID + ":" + kind
}

func claimPrefix(gameID string) string {
	return "claim:" + gameID + ":"
}

// parseClaimKey recovers the (game, player, kind) tuple from a claim key.
func parseClaimKey(key string) (Claim, bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "claim" {
		return Claim{}, false
	}
	return Claim{GameID: parts[1], PlayerID: parts[2], Kind: parts[3]}, true
}
