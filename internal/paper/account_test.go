package paper

import (
	"errors"
	"math"
	"testing"

	"github.com/SudoMindfreak/QuantBox/internal/execution"
)

func buy(asset string, px, qty float64) execution.Fill {
	return execution.Fill{AssetID: asset, Side: execution.Buy, Price: px, Qty: qty}
}

func sell(asset string, px, qty float64) execution.Fill {
	return execution.Fill{AssetID: asset, Side: execution.Sell, Price: px, Qty: qty}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuysAccumulateCostAndQty(t *testing.T) {
	account := NewAccount(1000)
	fills := []execution.Fill{buy("up", 0.40, 10), buy("up", 0.55, 5), buy("up", 0.31, 7.5)}
	wantCost, wantQty := 0.0, 0.0
	for _, f := range fills {
		res, err := account.ApplyFill(f)
		if err != nil {
			t.Fatalf("unexpected buy error: %v", err)
		}
		if !almost(res.Notional, f.Price*f.Qty) {
			t.Fatalf("notional %.4f want %.4f", res.Notional, f.Price*f.Qty)
		}
		wantCost += f.Price * f.Qty
		wantQty += f.Qty
		pos := account.Position("up")
		if !almost(pos.Cost, wantCost) || !almost(pos.Qty, wantQty) {
			t.Fatalf("position %+v want cost %.4f qty %.4f", pos, wantCost, wantQty)
		}
	}
	if !almost(account.Cash(), 1000-wantCost) {
		t.Fatalf("cash %.4f want %.4f", account.Cash(), 1000-wantCost)
	}
}

func TestInsufficientCashIsNoop(t *testing.T) {
	account := NewAccount(3)
	_, err := account.ApplyFill(buy("up", 0.40, 10))
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if account.Cash() != 3 || account.Position("up").Qty != 0 {
		t.Fatalf("rejected buy mutated the account")
	}
}

func TestSellUsesAverageCost(t *testing.T) {
	account := NewAccount(1000)
	_, _ = account.ApplyFill(buy("up", 0.40, 10))
	_, _ = account.ApplyFill(buy("up", 0.60, 10))

	res, err := account.ApplyFill(sell("up", 0.70, 5))
	if err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	if !almost(res.Realized, 0.70*5-0.50*5) {
		t.Fatalf("realized %.4f want 1.0", res.Realized)
	}
	pos := account.Position("up")
	if !almost(pos.Qty, 15) || !almost(pos.Cost, 7.5) {
		t.Fatalf("unexpected position after partial sell %+v", pos)
	}
	if !almost(account.RealizedPnL(), 1.0) {
		t.Fatalf("realized pnl %.4f", account.RealizedPnL())
	}
}

func TestRealizedIndependentOfBuyOrder(t *testing.T) {
	a := NewAccount(1000)
	b := NewAccount(1000)
	_, _ = a.ApplyFill(buy("up", 0.20, 10))
	_, _ = a.ApplyFill(buy("up", 0.80, 10))
	_, _ = b.ApplyFill(buy("up", 0.80, 10))
	_, _ = b.ApplyFill(buy("up", 0.20, 10))

	ra, _ := a.ApplyFill(sell("up", 0.65, 12))
	rb, _ := b.ApplyFill(sell("up", 0.65, 12))
	if !almost(ra.Realized, rb.Realized) {
		t.Fatalf("average cost realized differs by order: %.6f vs %.6f", ra.Realized, rb.Realized)
	}
}

func TestSellToFlatZeroesCost(t *testing.T) {
	account := NewAccount(1000)
	_, _ = account.ApplyFill(buy("up", 0.1, 3))
	_, _ = account.ApplyFill(buy("up", 0.2, 3))
	_, _ = account.ApplyFill(buy("up", 0.3, 3))
	if _, err := account.ApplyFill(sell("up", 0.33, 9)); err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	pos := account.Position("up")
	if pos.Qty != 0 || pos.Cost != 0 {
		t.Fatalf("expected flat position with zero cost, got %+v", pos)
	}
}

func TestOversellKeepsZeroCost(t *testing.T) {
	account := NewAccount(1000)
	_, _ = account.ApplyFill(buy("down", 0.5, 2))
	res, err := account.ApplyFill(sell("down", 0.5, 5))
	if err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	pos := account.Position("down")
	if pos.Qty != -3 || pos.Cost != 0 {
		t.Fatalf("expected qty -3 with zero cost, got %+v", pos)
	}
	if !almost(res.Realized, 2.5-0.5*5) {
		t.Fatalf("unexpected realized %.4f", res.Realized)
	}

	flat := NewAccount(10)
	res, _ = flat.ApplyFill(sell("up", 0.4, 1))
	if !almost(res.Realized, 0.4) {
		t.Fatalf("selling with nothing held uses zero avg cost, got %.4f", res.Realized)
	}
}

func TestSettleWinnerAndLoser(t *testing.T) {
	account := NewAccount(100)
	_, _ = account.ApplyFill(buy("up", 0.40, 20))
	_, _ = account.ApplyFill(buy("down", 0.40, 15))

	settled := account.Settle("up")
	if len(settled) != 2 {
		t.Fatalf("expected two settlements, got %d", len(settled))
	}
	byAsset := map[string]Settlement{}
	for _, s := range settled {
		byAsset[s.AssetID] = s
	}
	if !almost(byAsset["up"].PnL, 12.0) || byAsset["up"].FinalPrice != 1 {
		t.Fatalf("winner settlement %+v", byAsset["up"])
	}
	if !almost(byAsset["down"].PnL, -6.0) || byAsset["down"].FinalPrice != 0 {
		t.Fatalf("loser settlement %+v", byAsset["down"])
	}
	if !almost(account.Cash(), 100-8-6+20) {
		t.Fatalf("cash after settle %.4f", account.Cash())
	}
	if !almost(account.RealizedPnL(), 6.0) {
		t.Fatalf("realized after settle %.4f", account.RealizedPnL())
	}
	if account.Position("up").Qty != 0 || account.Position("down").Cost != 0 {
		t.Fatalf("positions not cleared")
	}
	if len(account.Settle("up")) != 0 {
		t.Fatalf("second settle should be empty")
	}
}

func TestSnapshotMarksPositions(t *testing.T) {
	account := NewAccount(100)
	_, _ = account.ApplyFill(buy("up", 0.40, 10))

	snap := account.Snapshot(map[string]float64{"up": 0.55})
	pos := snap.Positions["up"]
	if !almost(pos.AvgCost, 0.40) || !almost(pos.Unrealized, 1.5) {
		t.Fatalf("unexpected snapshot position %+v", pos)
	}
	if !almost(snap.Equity, snap.Cash+pos.MarketValue) {
		t.Fatalf("equity did not balance")
	}

	snap = account.Snapshot(nil)
	if pos := snap.Positions["up"]; !almost(pos.Unrealized, -4) || pos.MarketValue != 0 {
		t.Fatalf("missing mark should value the position at zero, got %+v", pos)
	}
	if !almost(snap.Equity, snap.Cash) {
		t.Fatalf("equity should equal cash without marks, got %v", snap.Equity)
	}
}

func TestBuyRejectedWhenCashFallsShortByAnyAmount(t *testing.T) {
	account := NewAccount(5.99)
	if _, err := account.ApplyFill(buy("up", 0.60, 10)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	account = NewAccount(6 - 1e-10)
	if _, err := account.ApplyFill(buy("up", 0.60, 10)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected a sub-epsilon shortfall to be rejected, got %v", err)
	}
	if account.Cash() < 0 {
		t.Fatalf("cash went negative: %v", account.Cash())
	}
	account = NewAccount(6)
	if _, err := account.ApplyFill(buy("up", 0.60, 10)); err != nil {
		t.Fatalf("exact cash should cover the buy: %v", err)
	}
}

func TestCheckpointRestore(t *testing.T) {
	account := NewAccount(500)
	_, _ = account.ApplyFill(buy("up", 0.5, 10))
	account.Settle("up")
	cp := account.Checkpoint()

	restored := NewAccount(1)
	if err := restored.Restore(cp); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Cash() != cp.Cash || restored.RealizedPnL() != cp.RealizedPnL || restored.StartingCash() != 500 {
		t.Fatalf("restore mismatch %+v", restored.Checkpoint())
	}

	busy := NewAccount(10)
	_, _ = busy.ApplyFill(buy("up", 0.5, 1))
	if err := busy.Restore(cp); err == nil {
		t.Fatalf("expected restore to refuse open positions")
	}
}

func TestResetRoundKeepsCash(t *testing.T) {
	account := NewAccount(50)
	_, _ = account.ApplyFill(buy("up", 0.5, 10))
	account.ResetRound()
	if account.Position("up").Qty != 0 {
		t.Fatalf("expected positions cleared")
	}
	if account.Cash() != 45 {
		t.Fatalf("cash should persist, got %.2f", account.Cash())
	}
}
