package commands

import "fmt"

const (
	adminRequiredMessage = "You don't have permissions to run that command! (required permissions: administrator)"
	ownerRequiredMessage = "You don't have permission to run that command (required permissions: author)!"
)

func guildRequiredMessage(prefix, name string) string {
	return fmt.Sprintf("You need to run %s%s in a server, or set a home server with %ssetserver first!", prefix, name, prefix)
}

// requireGuildAdmin devuelve la respuesta de rechazo, o "" si el autor puede
// seguir.
func requireGuildAdmin(c *Context, name string) string {
	if c.Message.IsDirect() {
		return guildRequiredMessage(c.prefix(), name)
	}
	if !c.Message.IsAdministrator() {
		return adminRequiredMessage
	}
	return ""
}

// stripPrefix quita el prefijo de comando si alguien lo escribió en un
// argumento ("!echo" -> "echo").
func stripPrefix(prefix, word string) string {
	if prefix != "" && len(word) > len(prefix) && word[:len(prefix)] == prefix {
		return word[len(prefix):]
	}
	return word
}
