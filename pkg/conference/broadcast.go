package conference

// sendConferenceInfos is the single chokepoint for layout updates (spec.md §4.8). It:
//  1. asynchronously dispatches a per-call JSON blob to every participating call, with
//     the host row's URI filled in with the local account's identity,
//  2. creates/refreshes sink-clients for each participant cell,
//  3. emits the client-signal with the vector-of-maps representation.
//
// Broadcasts are idempotent under equal-layout comparison: if the assembled view is
// unchanged since the last broadcast, nothing is dispatched at all (this is what breaks
// feedback loops between nested hosts).
func (c *Core) sendConferenceInfos() {
	c.confInfoMutex.Lock()
	localRows := append([]ParticipantInfo(nil), c.confInfo.Participants...)
	canvasW, canvasH := c.confInfo.W, c.confInfo.H
	c.confInfoMutex.Unlock()

	c.stampSinkIDs(localRows)

	allRows := c.remoteHosts.AssembleAll(localRows)
	full := ConfInfo{Participants: allRows, W: canvasW, H: canvasH}

	c.confInfoMutex.Lock()
	unchanged := c.lastBroadcast.Equal(full)
	if !unchanged {
		c.lastBroadcast = full.Clone()
	}
	c.confInfoMutex.Unlock()

	if unchanged {
		return
	}

	for _, callID := range c.participants.List() {
		callID := callID

		call, ok := c.lookupCall(callID)
		if !ok {
			continue
		}

		peer := StripURISuffix(call.PeerNumber())
		rows := c.remoteHosts.AssembleFor(peer, localRows)
		perCall := ConfInfo{Participants: rows, W: canvasW, H: canvasH}.WithHostURIFilled(c.account.URI())
		payload := perCall.ToJSON()

		if err := c.broadcaster.Dispatch(func() {
			call.SendConfInfo(payload)
		}); err != nil {
			c.logger.WithError(err).WithField("call_id", callID).Warn("failed to queue conf-info broadcast")
		}
	}

	c.signals.OnConferenceInfosUpdated(c.id, full.ToClientMaps())
}

// stampSinkIDs assigns (and lazily creates) a mixer sink for every row, keyed by
// confId||peerId, so that layout rectangles have a stable video sink to draw into.
func (c *Core) stampSinkIDs(rows []ParticipantInfo) {
	if c.videoMixer == nil {
		return
	}

	c.sinksMtx.Lock()
	defer c.sinksMtx.Unlock()

	if c.sinks == nil {
		c.sinks = make(map[string]struct{})
	}

	for i := range rows {
		peer := HostURI
		if rows[i].URI != "" {
			peer = StripURISuffix(rows[i].URI)
		}

		sinkID := c.id + string(peer)
		rows[i].SinkID = sinkID

		if _, exists := c.sinks[sinkID]; !exists {
			c.sinks[sinkID] = struct{}{}
			c.videoMixer.GetSink(sinkID)
		}
	}
}
