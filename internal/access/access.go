// Package access decides who may talk to the bot and which chats each
// user may search across.
package access

import (
	"log/slog"
	"strconv"

	"tgindex/entity"
	"tgindex/internal/config"
	"tgindex/lib/sl"
)

// Access modes. The configured mode is a set drawn from these values.
const (
	ModePrivate = "private"
	ModeGroup   = "group"
	ModePublic  = "public"
)

type Controller struct {
	ownerId       int64
	modes         map[string]bool
	allowedGroups map[int64]bool
	allowedUsers  map[int64]bool
	admins        map[int64]bool
	userGroups    map[int64][]int64
	log           *slog.Logger
}

func New(ownerId int64, conf config.BotConfig, log *slog.Logger) *Controller {
	c := &Controller{
		ownerId:       ownerId,
		modes:         make(map[string]bool, len(conf.Mode)),
		allowedGroups: make(map[int64]bool, len(conf.AllowedGroups)),
		allowedUsers:  make(map[int64]bool, len(conf.AllowedUsers)),
		admins:        make(map[int64]bool, len(conf.Admins)),
		userGroups:    make(map[int64][]int64, len(conf.UserGroupPermissions)),
		log:           log.With(sl.Module("access")),
	}
	for _, m := range conf.Mode {
		c.modes[m] = true
	}
	if len(c.modes) == 0 {
		c.modes[ModePrivate] = true
	}
	for _, id := range conf.AllowedGroups {
		c.allowedGroups[id] = true
	}
	for _, id := range conf.AllowedUsers {
		c.allowedUsers[id] = true
	}
	for _, id := range conf.Admins {
		c.admins[id] = true
	}
	for uid, groups := range conf.UserGroupPermissions {
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			c.log.With(slog.String("user_id", uid)).Warn("ignoring malformed user_group_permissions key")
			continue
		}
		c.userGroups[id] = groups
	}
	return c
}

func (c *Controller) IsOwner(userId int64) bool {
	return userId == c.ownerId
}

func (c *Controller) IsAdmin(userId int64) bool {
	return userId == c.ownerId || c.admins[userId]
}

// Allowed reports whether a message from userId in the given chat should
// be handled at all. chatType uses the document chat type names.
func (c *Controller) Allowed(userId, chatId int64, chatType string) bool {
	if userId == c.ownerId {
		return true
	}
	if c.modes[ModePublic] {
		return true
	}
	switch chatType {
	case entity.ChatTypePrivate:
		if !c.modes[ModePrivate] {
			return false
		}
		// private as the sole mode means owner only; allow-listed users and
		// admins get private access when another mode is enabled alongside it
		if len(c.modes) == 1 {
			return false
		}
		return c.allowedUsers[userId] || c.admins[userId]
	case entity.ChatTypeGroup, entity.ChatTypeSupergroup:
		return c.modes[ModeGroup] && c.allowedGroups[chatId]
	default:
		return false
	}
}

// AllowedGroupsFor returns the search scope for a user: nil means
// unrestricted (owner and admins), an empty set means no access at all.
func (c *Controller) AllowedGroupsFor(userId int64) []int64 {
	if c.IsAdmin(userId) {
		return nil
	}
	groups := c.userGroups[userId]
	out := make([]int64, len(groups))
	copy(out, groups)
	return out
}
