package domain

// Alias asocia una palabra clave propia de un servidor con un comando
// interno, opcionalmente con argumentos fijos ("echo hola").
// (ServerID, Keyword) es único.
type Alias struct {
	ID           int64
	ServerID     string
	Keyword      string
	TrueFunction string
}
