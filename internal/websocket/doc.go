// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

/*
Package websocket implements the session gateway: per-connection
lifecycle, room membership, and command dispatch over a persistent
bidirectional channel.

# Architecture

Each connection gets a Client with two pumps (gorilla/websocket's
standard pattern): readPump decodes {type, payload} commands and hands
them to the Gateway, writePump serializes outbound messages and keeps
the connection alive with pings. The Hub tracks connected clients and
their room membership and fans room-scoped broadcasts out to members.

Sessions are ephemeral. A reconnect is a brand-new session that must
re-join and re-fetch state; there is no replay, the join snapshot plus
subsequent broadcasts are the complete contract.

# Rooms and roles

A session joins one of two rooms and takes the matching role:

  - joinAdmin -> moderator, room "admin": raw event and settings
    change broadcasts, full command set.
  - joinFeed  -> viewer, room "feed": published events only, plus a
    published-events snapshot on join. The only mutating command a
    viewer may issue is markViewed, which is fire-and-forget.

Joining a room twice is a no-op, so no session ever receives a
broadcast more than once.

# Error surface

Failed commands produce an error message to the issuing session only;
nothing about a failure is broadcast. Mutations have no success reply
at all: the store changefeed drives the broadcast that confirms the
effect.
*/
package websocket
