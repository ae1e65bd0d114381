package memstore

import (
	"time"

	"github.com/qtosh1/botlyhub/internal/models"
)

func cloneUser(u models.User) *models.User {
	u.Badges = copyStrings(u.Badges)
	u.Email = copyString(u.Email)
	u.Phone = copyString(u.Phone)
	return &u
}

func cloneBot(b models.Bot) *models.Bot {
	b.Screenshots = copyStrings(b.Screenshots)
	b.Features = copyStrings(b.Features)
	b.RuntimeID = copyString(b.RuntimeID)
	b.UptimeStart = copyTime(b.UptimeStart)
	return &b
}

func cloneConnection(c models.BotConnection) *models.BotConnection {
	c.LastCheckAt = copyTime(c.LastCheckAt)
	c.RuntimeID = copyString(c.RuntimeID)
	c.UptimeStart = copyTime(c.UptimeStart)
	return &c
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
