package domain

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrInvalidRoomID    = errors.New("room id is not a v4 uuid")
	ErrAlreadyJoined    = errors.New("already joined room")
	ErrPeerNotConnected = errors.New("peer not connected")
	ErrLinkNotFound     = errors.New("peer link not found")
	ErrLinkClosed       = errors.New("peer link closed")
	ErrCaptureFailed    = errors.New("media capture failed")
)
