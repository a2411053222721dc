package server

import (
	"errors"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

// Errors reported to the originating connection as pb.Error replies.
var (
	ErrInvalidCredentials       = errors.New("invalid username or password")
	ErrUsernameTaken            = errors.New("username already taken")
	ErrAlreadyLoggedIn          = errors.New("user already logged in")
	ErrBanned                   = errors.New("you are banned from this server")
	ErrRoomNotFound             = errors.New("room not found")
	ErrRoomAlreadyExists        = errors.New("room already exists")
	ErrRoomLimit                = errors.New("room limit reached")
	ErrUnauthorizedAdminCommand = errors.New("admin privileges required")
	ErrUserNotFound             = errors.New("user not found")
	ErrMalformedMessage         = errors.New("malformed message")
	ErrTransportClosed          = errors.New("transport closed")
	ErrNotAuthenticated         = errors.New("login required")
	ErrMuted                    = errors.New("you are muted")
	ErrRateLimited              = errors.New("too many messages, slow down")
	ErrUnknownCommand           = errors.New("unknown admin command")
	ErrInvalidRoomName          = errors.New("invalid room name")
	ErrInvalidMessage           = errors.New("invalid message")
	ErrInvalidUsername          = errors.New("invalid username")
	ErrInvalidPassword          = errors.New("invalid password")
	ErrResponseTooLarge         = errors.New("response too large")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrUsernameTaken, "username_taken"},
	{ErrAlreadyLoggedIn, "already_logged_in"},
	{ErrBanned, "banned"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomAlreadyExists, "room_already_exists"},
	{ErrRoomLimit, "room_limit"},
	{ErrUnauthorizedAdminCommand, "unauthorized"},
	{ErrUserNotFound, "user_not_found"},
	{ErrMalformedMessage, "malformed_message"},
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrMuted, "muted"},
	{ErrRateLimited, "rate_limited"},
	{ErrUnknownCommand, "unknown_command"},
	{ErrInvalidRoomName, "invalid_room_name"},
	{ErrInvalidMessage, "invalid_message"},
	{ErrInvalidUsername, "invalid_username"},
	{ErrInvalidPassword, "invalid_password"},
	{ErrResponseTooLarge, "response_too_large"},
}

// ErrorCode returns the wire code for err, or "internal" if err wraps none
// of the package sentinels.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// errorEvent converts err into the event sent back to the client. Internal
// errors are reported without detail.
func errorEvent(err error) *pb.Error {
	code := ErrorCode(err)
	if code == "internal" {
		return &pb.Error{Message: "internal server error", Code: code}
	}
	return &pb.Error{Message: err.Error(), Code: code}
}
