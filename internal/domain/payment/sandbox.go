package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SandboxGateway is an in-process gateway used when no real provider is
// configured. It approves every charge and refund, minting charge ids with a
// recognizable prefix so sandbox transactions are easy to spot in the
// payments table.
type SandboxGateway struct {
	prefix string
}

// NewSandboxGateway returns a sandbox gateway minting ids like "sbx_<uuid>".
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{prefix: "sbx"}
}

func (g *SandboxGateway) Charge(_ context.Context, _ decimal.Decimal, _ string, _ uuid.UUID) (*ChargeResult, error) {
	return &ChargeResult{ChargeID: g.mint()}, nil
}

func (g *SandboxGateway) Refund(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}

func (g *SandboxGateway) mint() string {
	var b strings.Builder
	b.WriteString(g.prefix)
	b.WriteByte('_')
	b.WriteString(uuid.New().String())
	return b.String()
}
