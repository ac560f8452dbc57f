// Package server implements the HTTP surface of teamchat.
//
// It authenticates websocket handshakes before handing connections to the
// gateway, and serves the JSON API used next to the socket: sessions,
// workspaces and channels, history, uploads, edits, reactions, pins,
// presence and read markers. Handlers that change messages go through the
// chat dispatcher so socket clients see them exactly like socket-originated
// changes.
package server
