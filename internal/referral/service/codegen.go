package service

import (
	"crypto/rand"
	"math/big"

	"github.com/tekwealth/tekwealth/internal/config"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
)

type randomCodeGenerator struct {
	cfg *config.ReferralConfigHolder
}

// NewCodeGenerator draws codes from the configured alphabet. Length and
// alphabet are read per call so config reloads apply to the next code.
func NewCodeGenerator(cfg *config.ReferralConfigHolder) referraldomain.CodeGenerator {
	return &randomCodeGenerator{cfg: cfg}
}

func (g *randomCodeGenerator) Generate() (string, error) {
	current := g.cfg.Get()
	alphabet := []rune(current.CodeAlphabet)
	max := big.NewInt(int64(len(alphabet)))

	out := make([]rune, current.CodeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
