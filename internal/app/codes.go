package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"live-quiz-service/internal/docstore"
)

// DefaultCodeAttempts is how many codes are sampled before accepting a collision.
const DefaultCodeAttempts = 5

// CodeGenerator samples 4-digit join codes, avoiding codes of other active sessions.
type CodeGenerator struct {
	store    docstore.Store
	attempts int
	intn     func(n int) int
	logger   *slog.Logger
}

func NewCodeGenerator(store docstore.Store, attempts int, logger *slog.Logger) *CodeGenerator {
	if attempts < 1 {
		attempts = DefaultCodeAttempts
	}
	return &CodeGenerator{store: store, attempts: attempts, intn: rand.IntN, logger: loggerOrDefault(logger)}
}

// WithSource replaces the random source; intn must return a value in [0, n).
func (g *CodeGenerator) WithSource(intn func(n int) int) *CodeGenerator {
	g.intn = intn
	return g
}

// Generate returns a code in [1000, 9999]. When every attempt collides the last sample
// is used anyway: the lookup is not atomic with the create, so uniqueness is best effort.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	var code string
	for i := 0; i < g.attempts; i++ {
		code = strconv.Itoa(1000 + g.intn(9000))
		docs, err := g.store.Query(ctx, docstore.Where(docstore.Sessions,
			docstore.Eq("code", code),
			docstore.Eq("active", true),
		).Take(1))
		if err != nil {
			return "", storeErr("check code", err)
		}
		if len(docs) == 0 {
			return code, nil
		}
	}
	g.logger.Warn("join code collides with an active session", "code", code, "attempts", g.attempts)
	return code, nil
}
