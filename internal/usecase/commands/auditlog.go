package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"akrasiaBot/internal/domain"
)

const (
	DefaultAuditLogEntries = 5
	MaxAuditLogEntries     = 50

	// un número así de grande es un ID pegado, no una cantidad
	auditCountCeiling = 10_000_000_000
)

type AuditLogCommand struct{}

func NewAuditLogCommand() *AuditLogCommand {
	return &AuditLogCommand{}
}

func (c *AuditLogCommand) Name() string {
	return "auditlog"
}

func (c *AuditLogCommand) Help(prefix string) string {
	return "**auditlog** *[search term] [number of entries]*\n" +
		"*Permissions required: administrator*\n" +
		fmt.Sprintf("    Shows the most recent commands run on this server (default %d, max %d), optionally filtered by a search term.\n", DefaultAuditLogEntries, MaxAuditLogEntries) +
		"    `" + prefix + "auditlog`\n" +
		"    `" + prefix + "auditlog addalias 20`\n"
}

func (c *AuditLogCommand) Handle(ctx context.Context, cmdCtx *Context) (string, error) {
	if reply := requireGuildAdmin(cmdCtx, c.Name()); reply != "" {
		return reply, nil
	}
	msg := cmdCtx.Message

	limit, search := parseAuditArgs(cmdCtx.Args)

	var lines []string
	if limit > MaxAuditLogEntries && !cmdCtx.IsOwner() {
		lines = append(lines, fmt.Sprintf("You requested too many lines, so here's the maximum (%d)", MaxAuditLogEntries), "")
		limit = MaxAuditLogEntries
	}

	log := cmdCtx.Log.With().
		Str("user_id", msg.AuthorID).
		Int("num_entries", limit).
		Str("search_term", search).
		Logger()

	entries, err := cmdCtx.Session.QueryAuditLog(ctx, domain.AuditQuery{GuildID: msg.GuildID, Search: search, Limit: limit})
	if err != nil {
		return "", fmt.Errorf("query audit log: %w", err)
	}
	if len(entries) == 0 {
		log.Info().Msg("no audit log entries found")
		return fmt.Sprintf("No commands found matching the search terms (num_entries: %d, search_term: %s)", limit, search), nil
	}

	// la consulta viene de más nuevo a más viejo; se muestran en orden cronológico
	for i := len(entries) - 1; i >= 0; i-- {
		lines = append(lines, entries[i].Content)
	}
	if err := cmdCtx.ReplyLines(ctx, lines, true); err != nil {
		return "", err
	}
	log.Info().Int("sent", len(entries)).Msg("sent audit log")
	return "", nil
}

// parseAuditArgs interpreta "[búsqueda...] [n]". Sin número válido se usa el
// valor por defecto y todo el texto es la búsqueda.
func parseAuditArgs(args []string) (int, string) {
	switch len(args) {
	case 0:
		return DefaultAuditLogEntries, ""
	case 1:
		if n, ok := parseAuditCount(args[0]); ok {
			return n, ""
		}
		return DefaultAuditLogEntries, strings.ToLower(args[0])
	}

	if n, ok := parseAuditCount(args[len(args)-1]); ok {
		return n, strings.ToLower(strings.Join(args[:len(args)-1], " "))
	}
	return DefaultAuditLogEntries, strings.ToLower(strings.Join(args, " "))
}

func parseAuditCount(arg string) (int, bool) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || n < 1 || n > auditCountCeiling {
		return 0, false
	}
	return int(n), true
}
