package discordadapter

import (
	"slices"

	"github.com/bwmarrin/discordgo"

	"akrasiaBot/internal/domain"
)

// mapMessageToDomain normaliza un mensaje de Discord. guild puede ser nil si
// el estado aún no lo tiene; entonces el autor queda sin permisos.
func mapMessageToDomain(m *discordgo.Message, guild *discordgo.Guild) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		Platform:  domain.PlatformDiscord,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Text:      m.Content,
		CreatedAt: m.Timestamp.UTC(),
		IsPrivate: m.GuildID == "",
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = displayName(m.Author)
	}
	if guild != nil {
		msg.GuildName = guild.Name
	}
	if m.GuildID != "" && m.Member != nil {
		member := *m.Member
		if member.User == nil {
			member.User = m.Author
		}
		dm := mapMemberToDomain(guild, &member)
		msg.Member = &dm
	}
	return msg
}

func mapGuildToDomain(g *discordgo.Guild) domain.Guild {
	count := g.MemberCount
	if count == 0 {
		count = len(g.Members)
	}
	return domain.Guild{ID: g.ID, Name: g.Name, MemberCount: count}
}

func mapMemberToDomain(g *discordgo.Guild, m *discordgo.Member) domain.Member {
	out := domain.Member{IsAdministrator: isAdministrator(g, m)}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Name = displayName(m.User)
	}
	if m.Nick != "" {
		out.Name = m.Nick
	}
	return out
}

// isAdministrator: dueño del guild o algún rol (incluido @everyone, cuyo ID
// es el del guild) con el permiso de administrador.
func isAdministrator(g *discordgo.Guild, m *discordgo.Member) bool {
	if g == nil || m == nil {
		return false
	}
	if m.User != nil && m.User.ID == g.OwnerID {
		return true
	}
	for _, role := range g.Roles {
		if role.ID != g.ID && !slices.Contains(m.Roles, role.ID) {
			continue
		}
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
