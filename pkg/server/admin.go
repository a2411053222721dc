package server

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/NicolasHaas/roomspeak/pkg/model"
	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
	"github.com/NicolasHaas/roomspeak/pkg/rbac"
)

var commandPermissions = map[string]model.Permission{
	pb.CommandMute:   model.PermMuteUser,
	pb.CommandUnmute: model.PermMuteUser,
	pb.CommandKick:   model.PermKickUser,
	pb.CommandBan:    model.PermBanUser,
	pb.CommandUnban:  model.PermBanUser,
}

// handleAdminCommand applies a moderation command. Mute, unmute, kick and
// ban act on a connected session; unban works on any stored account.
func (c *client) handleAdminCommand(r *pb.AdminCommand) {
	sess, err := c.session()
	if err != nil {
		c.replyErr(err)
		return
	}
	perm, known := commandPermissions[r.Command]
	if !known {
		// Only moderators learn which command names exist.
		if !rbac.IsModerator(sess.Role) {
			c.denyAdminCommand(sess, r, ErrUnauthorizedAdminCommand)
			return
		}
		c.replyErr(unknownCommand(r.Command))
		return
	}
	if msg := rbac.RequirePermission(sess.Role, perm); msg != "" {
		c.denyAdminCommand(sess, r, fmt.Errorf("%w: %s", ErrUnauthorizedAdminCommand, msg))
		return
	}

	result, err := c.runAdminCommand(sess, r)
	if err != nil {
		c.replyErr(err)
		return
	}
	slog.Info("admin command", "admin", sess.Username, "command", r.Command, "target", r.Target)
	c.reply(&pb.AdminResponse{Message: result})
}

func (c *client) runAdminCommand(admin model.Session, r *pb.AdminCommand) (string, error) {
	h := c.hub
	target := r.Target

	switch r.Command {
	case pb.CommandMute, pb.CommandUnmute:
		muted := r.Command == pb.CommandMute
		if !h.sessions.SetMuted(target, muted) {
			return "", ErrUserNotFound
		}
		if muted {
			h.metrics.MuteCount.Add(1)
			return fmt.Sprintf("user %s muted", target), nil
		}
		return fmt.Sprintf("user %s unmuted", target), nil

	case pb.CommandKick:
		p, ok := h.sessions.peerOf(target)
		if !ok {
			return "", ErrUserNotFound
		}
		p.SendAndClose(c.encode(&pb.AdminResponse{Message: "you were kicked by " + admin.Username}))
		h.metrics.KickCount.Add(1)
		return fmt.Sprintf("user %s kicked", target), nil

	case pb.CommandBan:
		p, ok := h.sessions.peerOf(target)
		if !ok {
			return "", ErrUserNotFound
		}
		if err := h.dir.Ban(target, r.Reason, c.user.ID); err != nil {
			return "", err
		}
		// The flag stops the target's worker from acting before its
		// connection is torn down.
		h.sessions.SetBanned(target)
		p.SendAndClose(c.encode(errorEvent(ErrBanned)))
		h.metrics.BanCount.Add(1)
		return fmt.Sprintf("user %s banned", target), nil

	case pb.CommandUnban:
		n, err := h.dir.Unban(target)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return fmt.Sprintf("user %s was not banned", target), nil
		}
		h.metrics.UnbanCount.Add(1)
		return fmt.Sprintf("user %s unbanned", target), nil
	}
	return "", unknownCommand(r.Command)
}

func (c *client) denyAdminCommand(sess model.Session, r *pb.AdminCommand, err error) {
	slog.Warn("unauthorized admin command", "user", sess.Username, "command", truncateRunes(r.Command, maxEchoedCommand), "target", r.Target)
	c.replyErr(err)
}

// maxEchoedCommand bounds how much of an unrecognised command name is
// repeated back to the client or written to the log.
const maxEchoedCommand = 32

func unknownCommand(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCommand, truncateRunes(name, maxEchoedCommand))
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
