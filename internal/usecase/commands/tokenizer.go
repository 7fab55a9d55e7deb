package commands

import "strings"

// Tokenize separa el texto (ya sin prefijo) en palabra clave en minúsculas y
// argumentos. Ver SplitArgs.
func Tokenize(text string) (string, []string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", []string{}
	}
	return strings.ToLower(words[0]), SplitArgs(words[1:])
}

// SplitArgs reagrupa palabras en argumentos respetando comillas dobles: una
// palabra que empieza por " abre un argumento, una que termina en " lo
// cierra (también si no había ninguna abierta), y lo de dentro se une con
// un espacio. Una comilla sin cerrar al final se vuelca tal cual.
func SplitArgs(words []string) []string {
	args := []string{}
	var current []string
	inQuotes := false

	for _, word := range words {
		if word == "" {
			continue
		}
		if !inQuotes && len(word) > 1 && word[0] == '"' {
			word = word[1:]
			inQuotes = true
		}
		// la comilla de cierre se quita aunque no hubiera una abierta; solo
		// una " suelta fuera de comillas se queda como texto
		if strings.HasSuffix(word, `"`) && (inQuotes || len(word) > 1) {
			word = word[:len(word)-1]
			inQuotes = false
		}
		current = append(current, word)
		if !inQuotes {
			args = append(args, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		args = append(args, strings.Join(current, " "))
	}

	return args
}
