package commands

import (
	"context"
	"math/rand/v2"
)

const MagicEightBallPattern = "akrasia,"

var magicEightBallResponses = []string{
	"Without a doubt.",
	"As I see it, yes.",
	"Most likely.",
	"Outlook good.",
	"Signs point to yes.",
	"Reply hazy, try again.",
	"Ask again later.",
	"Better not tell you now.",
	"Cannot predict now.",
	"Concentrate and ask again.",
	"Don't count on it.",
	"My reply is no.",
	"My sources say no.",
	"Outlook not so good.",
	"Very doubtful.",
}

func MagicEightBall(_ context.Context, _ *Context) (string, error) {
	return magicEightBallResponses[rand.IntN(len(magicEightBallResponses))], nil
}
