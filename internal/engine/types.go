package engine

import (
	"errors"

	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/transcript"
)

var (
	// ErrInvalidInput marks requests rejected before any persistence.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderFailure marks turns where reply generation failed after the
	// visitor message was already persisted.
	ErrProviderFailure = errors.New("reply generation failed")
)

// TurnRequest is one inbound visitor message plus the routing context the
// widget supplies.
type TurnRequest struct {
	TenantID string
	// RoomID is the visitor's thread. Blank means start a new thread.
	RoomID string
	// NewThread forces a fresh room even when RoomID is set.
	NewThread bool
	// Image marks Content as an image reference token rather than text.
	Image bool
	Content string
	// History is the visible conversation so far, as the widget rendered it.
	// It is model context only; qualification claims read the stored
	// transcript instead.
	History []reply.Turn
}

// TurnResult is what the widget needs to continue the conversation.
type TurnResult struct {
	RoomID string
	// Live reports the room mode after this turn. When true and Reply is nil,
	// the message was relayed to a human and no generated reply follows.
	Live bool
	// Reply is the visitor-facing form of the assistant reply: signal
	// markers are already stripped from its content.
	Reply *transcript.Message
}

// Fixed assistant texts emitted without a generation call.
const (
	reassuranceReply = "No problem! Hang tight for just a moment, a member of our team will join this chat shortly."
	imageAckReply    = "Thanks for sharing! A member of our team will take a look shortly."
	welcomeFormat    = "Welcome aboard %s! I'm glad to connect with you. Is there anything you need help with?"
)
