package collab

// Follow mode is a viewport-mirroring relationship. The leader is not
// required to exist in the session: following a departed user is legal and
// simply produces no further updates.

func (h *Hub) handleStartFollowMode(cs *connState, p StartFollowModePayload) {
	if cs.session == nil {
		return
	}
	leaderID := p.LeaderID
	cs.presence.FollowingUserID = &leaderID

	if leader, ok := cs.session.Participants[leaderID]; ok {
		leader.Conn.Emit(EventFollowerJoined, map[string]interface{}{
			"followerId":   cs.presence.UserID,
			"followerName": cs.presence.FullName,
		})
	}
	cs.conn.Emit(EventFollowModeStarted, map[string]interface{}{"leaderId": leaderID})
}

func (h *Hub) handleStopFollowMode(cs *connState) {
	if cs.session == nil || cs.presence.FollowingUserID == nil {
		return
	}
	leaderID := *cs.presence.FollowingUserID
	cs.presence.FollowingUserID = nil

	if leader, ok := cs.session.Participants[leaderID]; ok {
		leader.Conn.Emit(EventFollowerLeft, map[string]interface{}{
			"followerId": cs.presence.UserID,
		})
	}
	cs.conn.Emit(EventFollowModeStopped, map[string]interface{}{"leaderId": leaderID})
}
