package outs

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"akrasiaBot/internal/domain"
)

const (
	TruncatedLineLength = 200
	MaxCharsPerMessage  = 2000
	DefaultSendInterval = 500 * time.Millisecond

	truncatedMarker = "[truncated]"
	codeFence       = "```"
)

// LineSender reparte una lista de líneas en tantos mensajes como haga falta
// sin pasar del límite de caracteres de la plataforma, espaciando los envíos.
type LineSender struct {
	interval time.Duration
}

func NewLineSender(interval time.Duration) *LineSender {
	if interval < 0 {
		interval = 0
	}
	return &LineSender{interval: interval}
}

func (s *LineSender) SendLines(ctx context.Context, send func(ctx context.Context, text string) error, lines []string, codeMode bool) error {
	chunks := PackLines(lines, codeMode)

	// un limitador por llamada: el primer envío sale sin esperar
	limit := rate.Inf
	if s.interval > 0 {
		limit = rate.Every(s.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

var _ domain.LineSender = (*LineSender)(nil)

// PackLines trunca cada línea larga y agrupa las líneas en mensajes de como
// mucho MaxCharsPerMessage caracteres, contando las vallas de código.
func PackLines(lines []string, codeMode bool) []string {
	budget := MaxCharsPerMessage
	if codeMode {
		budget -= 2*len(codeFence) + 2
	}

	var (
		out     []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size == 0 {
			return
		}
		text := current.String()
		if codeMode {
			text = codeFence + "\n" + text + codeFence
		}
		out = append(out, text)
		current.Reset()
		size = 0
	}

	for _, line := range lines {
		line = truncateLine(line)
		n := utf8.RuneCountInString(line) + 1
		if size > 0 && size+n > budget {
			flush()
		}
		current.WriteString(line)
		current.WriteByte('\n')
		size += n
	}
	flush()
	return out
}

func truncateLine(line string) string {
	if utf8.RuneCountInString(line) <= TruncatedLineLength {
		return line
	}
	return string([]rune(line)[:TruncatedLineLength]) + truncatedMarker
}
