package policy

import (
	"time"

	"github.com/xela07ax/guardian-demo/internal/domain"
)

// Seed: начальное состояние демо-сессии. Создается один раз при старте процесса.
type Seed struct {
	Guardian  string
	Child     string
	SpendCap  domain.Balance
	Allowlist []string
	Flagged   []domain.FlaggedAddress
}

const (
	DemoGuardian = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	DemoChild    = "5HpG9w8EBLe5XCrbczpwq5TSXvedjrBGCwqxK1iQ7qUsSWFc"
	DemoSpendCap = domain.Balance(1000)
)

// DefaultSeed возвращает фиксированные демо-данные; метки времени флагов
// отсчитываются от now (час и два часа назад).
func DefaultSeed(now time.Time) Seed {
	return Seed{
		Guardian: DemoGuardian,
		Child:    DemoChild,
		SpendCap: DemoSpendCap,
		Allowlist: []string{
			"5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty",
			"5DAAnrj7VHTznn2AWBemMuyBwZWs6FNFjdyVXUeYum3PTXFy",
		},
		Flagged: []domain.FlaggedAddress{
			{
				Address:   "5CiPPseXPECbkjWCa6MnjNokrgYjMqmKndv2rSnekmSK2DjL",
				Reason:    "Known scam contract",
				Timestamp: now.Add(-time.Hour).UnixMilli(),
			},
			{
				Address:   "5GNJqTPyNqANBkUVMN1LPPrxXnFouWXoe2wNSmmEoLctxiZY",
				Reason:    "Compromised wallet",
				Timestamp: now.Add(-2 * time.Hour).UnixMilli(),
			},
		},
	}
}
