package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	confirmationPrefix      = "APT-"
	confirmationMaxAttempts = 10
)

// ConfirmationChecker is the slice of Repository the generator needs.
type ConfirmationChecker interface {
	ConfirmationNumberExists(ctx context.Context, confirmationNumber string) (bool, error)
}

// ConfirmationGenerator produces the externally visible booking reference:
// "APT-" plus 8 uppercase hex characters. The reference is assigned exactly
// once per appointment at booking time and never regenerated afterwards.
type ConfirmationGenerator struct {
	checker ConfirmationChecker
}

func NewConfirmationGenerator(checker ConfirmationChecker) *ConfirmationGenerator {
	return &ConfirmationGenerator{checker: checker}
}

// Generate returns a confirmation number that does not collide with any
// existing appointment. Collisions are unlikely at this width, but checked
// anyway; after too many attempts it falls back to a timestamp-derived
// token.
func (g *ConfirmationGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < confirmationMaxAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", fmt.Errorf("generate confirmation number: %w", err)
		}

		exists, err := g.checker.ConfirmationNumberExists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("check confirmation number: %w", err)
		}
		if !exists {
			return token, nil
		}
	}

	return fmt.Sprintf("%s%08d", confirmationPrefix, time.Now().UnixMilli()%100000000), nil
}

func randomToken() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return confirmationPrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}
